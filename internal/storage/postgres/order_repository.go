package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const orderColumns = `id, order_number, customer_id, status, total_amount, currency,
		placed_at, locked_at, version, created_at, updated_at`

type orderRepository struct {
	q   dbtx
	now func() time.Time
	// autocommit задан вне транзакции: многошаговые записи открывают свою.
	autocommit *Store
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	if r.autocommit != nil {
		return r.autocommit.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
			return tx.Orders().Create(ctx, order)
		})
	}
	if order.ID == "" || order.Number == "" {
		return domain.InvalidArgument("order id and number are required")
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, customer_id, status, total_amount, currency,
			placed_at, locked_at, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.Number, order.CustomerID, string(order.Status), order.TotalAmount, order.Currency,
		order.PlacedAt, order.LockedAt, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			pgErr, _ := pgError(err)
			if pgErr.ConstraintName == constraintOrderNumber {
				return domain.Persistence("create order", fmt.Errorf("%w: %s", domain.ErrOrderNumberTaken, order.Number))
			}
			return domain.Persistence("create order", domain.ErrOrderVersionConflict)
		}
		return persistence("insert order", err)
	}

	for _, line := range order.Lines {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_lines (
				id, order_id, book_id, warehouse_id, quantity, unit_price
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			line.ID, order.ID, line.BookID, line.WarehouseID, line.Quantity, line.UnitPrice,
		); err != nil {
			return persistence("insert order line", err)
		}
	}
	return nil
}

func (r *orderRepository) GetByNumber(ctx context.Context, number string) (domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
}

// LockByNumber блокирует строку заказа (FOR UPDATE) до конца транзакции.
func (r *orderRepository) LockByNumber(ctx context.Context, number string) (domain.Order, error) {
	if r.autocommit != nil {
		return r.GetByNumber(ctx, number)
	}
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1 FOR UPDATE`, number)
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $2", customerID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, customerID)
	}
	if err != nil {
		return nil, persistence("list orders", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, persistence("scan order row", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, persistence("iterate order rows", err)
	}
	rows.Close()

	// Позиции читаем после закрытия курсора: в транзакции соединение одно.
	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

// Save применяет статус и сумму с проверкой версии.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    total_amount = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4
		  AND version = $5
	`,
		string(order.Status),
		order.TotalAmount,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return persistence("update order", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return persistence("order rows affected", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}
	return nil
}

// Delete удаляет заказ; позиции удаляются каскадно, ссылки журнала обнуляются (ON DELETE SET NULL).
func (r *orderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return persistence("delete order", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence("order rows affected", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) getOne(ctx context.Context, query string, args ...any) (domain.Order, error) {
	order, err := scanOrder(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, persistence("select order", err)
	}

	lines, err := r.loadLines(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines
	return order, nil
}

func (r *orderRepository) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, book_id, warehouse_id, quantity, unit_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, persistence("load order lines", err)
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.BookID, &line.WarehouseID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, persistence("scan order line", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate order lines", err)
	}
	return lines, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, persistence("check order exists", err)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order    domain.Order
		status   string
		lockedAt sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.Number, &order.CustomerID, &status, &order.TotalAmount, &order.Currency,
		&order.PlacedAt, &lockedAt, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PlacedAt = order.PlacedAt.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if lockedAt.Valid {
		t := lockedAt.Time.UTC()
		order.LockedAt = &t
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
