package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const inventoryColumns = `i.id, i.warehouse_id, w.code, i.book_id, i.quantity, i.updated_at`

// inventoryRepository доступен только внутри транзакции: без неё FOR UPDATE бессмыслен.
type inventoryRepository struct {
	q   dbtx
	now func() time.Time
}

// LockByBook блокирует строки книги в порядке id, чтобы параллельные
// транзакции захватывали их в одинаковой последовательности.
func (r *inventoryRepository) LockByBook(ctx context.Context, bookID int64) ([]domain.Inventory, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory i
		JOIN warehouses w ON w.id = i.warehouse_id
		WHERE i.book_id = $1
		ORDER BY i.id
		FOR UPDATE OF i
	`, bookID)
	if err != nil {
		return nil, persistence("lock inventory rows", err)
	}
	defer rows.Close()

	result := make([]domain.Inventory, 0, 2)
	for rows.Next() {
		row, err := scanInventory(rows)
		if err != nil {
			return nil, persistence("scan inventory row", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate inventory rows", err)
	}
	return result, nil
}

// LockByBooks блокирует строки всех книг одним запросом в порядке id.
func (r *inventoryRepository) LockByBooks(ctx context.Context, bookIDs []int64) ([]domain.Inventory, error) {
	if len(bookIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory i
		JOIN warehouses w ON w.id = i.warehouse_id
		WHERE i.book_id = ANY($1)
		ORDER BY i.id
		FOR UPDATE OF i
	`, bookIDs)
	if err != nil {
		return nil, persistence("lock inventory rows", err)
	}
	defer rows.Close()

	result := make([]domain.Inventory, 0, len(bookIDs))
	for rows.Next() {
		row, err := scanInventory(rows)
		if err != nil {
			return nil, persistence("scan inventory row", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate inventory rows", err)
	}
	return result, nil
}

func (r *inventoryRepository) Lock(ctx context.Context, warehouseID, bookID int64) (domain.Inventory, error) {
	row, err := scanInventory(r.q.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory i
		JOIN warehouses w ON w.id = i.warehouse_id
		WHERE i.warehouse_id = $1 AND i.book_id = $2
		FOR UPDATE OF i
	`, warehouseID, bookID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Inventory{}, domain.NoInventory(bookID)
		}
		return domain.Inventory{}, persistence("lock inventory row", err)
	}
	return row, nil
}

func (r *inventoryRepository) UpdateQuantity(ctx context.Context, inventoryID int64, quantity int) error {
	if quantity < 0 {
		return domain.InvalidArgument("inventory quantity must be non-negative, got %d", quantity)
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE inventory
		SET quantity = $2,
		    updated_at = $3
		WHERE id = $1
	`, inventoryID, quantity, r.now())
	if err != nil {
		return persistence("update inventory", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence("inventory rows affected", err)
	}
	if affected == 0 {
		return domain.Persistence("update inventory", fmt.Errorf("inventory %d disappeared", inventoryID))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventory(row rowScanner) (domain.Inventory, error) {
	var inv domain.Inventory
	if err := row.Scan(&inv.ID, &inv.WarehouseID, &inv.WarehouseCode, &inv.BookID, &inv.Quantity, &inv.UpdatedAt); err != nil {
		return domain.Inventory{}, err
	}
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return inv, nil
}

var _ domain.InventoryRepository = (*inventoryRepository)(nil)
