package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type catalogRepository struct {
	q   dbtx
	now func() time.Time
}

func (r *catalogRepository) SaveBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	if book.Price.IsNegative() {
		return domain.Book{}, domain.InvalidArgument("book price must be non-negative")
	}
	if book.Currency == "" {
		book.Currency = domain.DefaultCurrency
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var err error
	if book.ID == 0 {
		err = r.q.QueryRowContext(ctx, `
			INSERT INTO books (isbn, title, price, currency)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, nullIfEmpty(book.ISBN), book.Title, book.Price, book.Currency).Scan(&book.ID)
	} else {
		_, err = r.q.ExecContext(ctx, `
			INSERT INTO books (id, isbn, title, price, currency)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET isbn = EXCLUDED.isbn,
			    title = EXCLUDED.title,
			    price = EXCLUDED.price,
			    currency = EXCLUDED.currency
		`, book.ID, nullIfEmpty(book.ISBN), book.Title, book.Price, book.Currency)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Book{}, domain.InvalidArgument("isbn %s is already used", book.ISBN)
		}
		return domain.Book{}, persistence("save book", err)
	}
	return book, nil
}

func (r *catalogRepository) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		book domain.Book
		isbn sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, isbn, title, price, currency
		FROM books
		WHERE id = $1
	`, id).Scan(&book.ID, &isbn, &book.Title, &book.Price, &book.Currency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, persistence("get book", err)
	}
	book.ISBN = isbn.String
	return book, nil
}

// SaveWarehouse создаёт склад или обновляет его название по коду.
func (r *catalogRepository) SaveWarehouse(ctx context.Context, warehouse domain.Warehouse) (domain.Warehouse, error) {
	warehouse.Code = strings.TrimSpace(warehouse.Code)
	if warehouse.Code == "" {
		return domain.Warehouse{}, domain.InvalidArgument("warehouse code is required")
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO warehouses (code, name)
		VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, warehouse.Code, warehouse.Name).Scan(&warehouse.ID)
	if err != nil {
		return domain.Warehouse{}, persistence("save warehouse", err)
	}
	return warehouse, nil
}

// SetStock пишет остаток в обход ledger и используется только для наполнения данных.
func (r *catalogRepository) SetStock(ctx context.Context, warehouseID, bookID int64, quantity int) (domain.Inventory, error) {
	if quantity < 0 {
		return domain.Inventory{}, domain.InvalidArgument("stock quantity must be non-negative, got %d", quantity)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row, err := scanInventory(r.q.QueryRowContext(ctx, `
		WITH upserted AS (
			INSERT INTO inventory (warehouse_id, book_id, quantity, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (warehouse_id, book_id) DO UPDATE
			SET quantity = EXCLUDED.quantity,
			    updated_at = EXCLUDED.updated_at
			RETURNING id, warehouse_id, book_id, quantity, updated_at
		)
		SELECT i.id, i.warehouse_id, w.code, i.book_id, i.quantity, i.updated_at
		FROM upserted i
		JOIN warehouses w ON w.id = i.warehouse_id
	`, warehouseID, bookID, quantity, r.now()))
	if err != nil {
		if isForeignKeyViolation(err) {
			pgErr, _ := pgError(err)
			if strings.Contains(pgErr.ConstraintName, "warehouse") {
				return domain.Inventory{}, domain.ErrWarehouseNotFound
			}
			return domain.Inventory{}, domain.ErrBookNotFound
		}
		return domain.Inventory{}, persistence("set stock", err)
	}
	return row, nil
}

func (r *catalogRepository) ListStock(ctx context.Context, bookID int64) ([]domain.Inventory, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM inventory i
		JOIN warehouses w ON w.id = i.warehouse_id
		WHERE i.book_id = $1
		ORDER BY i.id
	`, bookID)
	if err != nil {
		return nil, persistence("list stock", err)
	}
	defer rows.Close()

	result := make([]domain.Inventory, 0, 2)
	for rows.Next() {
		row, err := scanInventory(rows)
		if err != nil {
			return nil, persistence("scan stock row", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate stock rows", err)
	}
	return result, nil
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
