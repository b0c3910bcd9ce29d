package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type cartRepository struct {
	q   dbtx
	now func() time.Time
}

func (r *cartRepository) Create(ctx context.Context, customerID string) (domain.Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Cart{}, domain.InvalidArgument("customer_id is required")
	}

	now := r.now()
	cart := domain.Cart{CustomerID: customerID, Active: true, CreatedAt: now, UpdatedAt: now}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO carts (customer_id, active, created_at, updated_at)
		VALUES ($1, TRUE, $2, $2)
		RETURNING id
	`, customerID, now).Scan(&cart.ID)
	if err != nil {
		return domain.Cart{}, persistence("create cart", err)
	}
	return cart, nil
}

// AddItem добавляет позицию одним statement: вставка проходит только в активную корзину.
func (r *cartRepository) AddItem(ctx context.Context, cartID, bookID int64, quantity int, unitPrice decimal.Decimal) (domain.CartItem, error) {
	if quantity <= 0 {
		return domain.CartItem{}, domain.InvalidArgument("cart item quantity must be positive, got %d", quantity)
	}
	if unitPrice.IsNegative() {
		return domain.CartItem{}, domain.InvalidArgument("cart item price must be non-negative")
	}

	item := domain.CartItem{CartID: cartID, BookID: bookID, Quantity: quantity, UnitPrice: unitPrice, CreatedAt: r.now()}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, book_id, quantity, unit_price, created_at)
		SELECT c.id, $2, $3, $4, $5
		FROM carts c
		WHERE c.id = $1 AND c.active
		RETURNING id
	`, cartID, bookID, quantity, unitPrice, item.CreatedAt).Scan(&item.ID)
	switch {
	case err == nil:
		return item, nil
	case errors.Is(err, sql.ErrNoRows):
		if active, lookupErr := r.cartActive(ctx, cartID); lookupErr != nil {
			return domain.CartItem{}, lookupErr
		} else if !active {
			return domain.CartItem{}, domain.ErrCartInactive
		}
		return domain.CartItem{}, domain.Persistence("add cart item", errors.New("cart changed concurrently"))
	case isUniqueViolation(err):
		return domain.CartItem{}, domain.InvalidArgument("book %d is already in cart %d", bookID, cartID)
	case isForeignKeyViolation(err):
		return domain.CartItem{}, domain.ErrBookNotFound
	default:
		return domain.CartItem{}, persistence("add cart item", err)
	}
}

func (r *cartRepository) Get(ctx context.Context, id int64) (domain.Cart, error) {
	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, customer_id, active, created_at, updated_at
		FROM carts
		WHERE id = $1
	`, id).Scan(&cart.ID, &cart.CustomerID, &cart.Active, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, persistence("get cart", err)
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, cart_id, book_id, quantity, unit_price, created_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return domain.Cart{}, persistence("load cart items", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.BookID, &item.Quantity, &item.UnitPrice, &item.CreatedAt); err != nil {
			return domain.Cart{}, persistence("scan cart item", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Cart{}, persistence("iterate cart items", err)
	}
	return cart, nil
}

// Deactivate выполняет условный UPDATE: из двух параллельных оформлений одной корзины
// строку изменит только первое, второе получит ErrCartInactive.
func (r *cartRepository) Deactivate(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE carts
		SET active = FALSE,
		    updated_at = $2
		WHERE id = $1 AND active
	`, id, r.now())
	if err != nil {
		return persistence("deactivate cart", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence("cart rows affected", err)
	}
	if affected == 1 {
		return nil
	}

	if _, err := r.cartActive(ctx, id); err != nil {
		return err
	}
	return domain.ErrCartInactive
}

func (r *cartRepository) cartActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.q.QueryRowContext(ctx, `SELECT active FROM carts WHERE id = $1`, id).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrCartNotFound
		}
		return false, persistence("check cart", err)
	}
	return active, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
