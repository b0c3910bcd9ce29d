package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func cartLockKey(id int64) string {
	return fmt.Sprintf("cart:%d", id)
}

type txCarts struct {
	tx *memTx
}

func (r *txCarts) Create(_ context.Context, customerID string) (domain.Cart, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Cart{}, domain.InvalidArgument("customer_id is required")
	}

	s := r.tx.store
	now := s.now()
	cart := domain.Cart{
		ID:         s.nextID(&s.seq.cart),
		CustomerID: customerID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.tx.carts[cart.ID] = cart
	return cloneCart(cart), nil
}

func (r *txCarts) AddItem(ctx context.Context, cartID, bookID int64, quantity int, unitPrice decimal.Decimal) (domain.CartItem, error) {
	if quantity <= 0 {
		return domain.CartItem{}, domain.InvalidArgument("cart item quantity must be positive, got %d", quantity)
	}
	if unitPrice.IsNegative() {
		return domain.CartItem{}, domain.InvalidArgument("cart item price must be non-negative")
	}
	if err := r.tx.lock(ctx, cartLockKey(cartID)); err != nil {
		return domain.CartItem{}, err
	}

	cart, ok := r.tx.cart(cartID)
	if !ok {
		return domain.CartItem{}, domain.ErrCartNotFound
	}
	if !cart.Active {
		return domain.CartItem{}, domain.ErrCartInactive
	}

	s := r.tx.store
	s.mu.RLock()
	_, bookExists := s.books[bookID]
	s.mu.RUnlock()
	if !bookExists {
		return domain.CartItem{}, domain.ErrBookNotFound
	}
	for _, item := range cart.Items {
		if item.BookID == bookID {
			return domain.CartItem{}, domain.InvalidArgument("book %d is already in cart %d", bookID, cartID)
		}
	}

	item := domain.CartItem{
		ID:        s.nextID(&s.seq.cartItem),
		CartID:    cartID,
		BookID:    bookID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		CreatedAt: s.now(),
	}
	cart.Items = append(cart.Items, item)
	cart.UpdatedAt = item.CreatedAt
	r.tx.carts[cartID] = cart
	return item, nil
}

func (r *txCarts) Get(_ context.Context, id int64) (domain.Cart, error) {
	cart, ok := r.tx.cart(id)
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart, nil
}

func (r *txCarts) Deactivate(ctx context.Context, id int64) error {
	if err := r.tx.lock(ctx, cartLockKey(id)); err != nil {
		return err
	}
	cart, ok := r.tx.cart(id)
	if !ok {
		return domain.ErrCartNotFound
	}
	if !cart.Active {
		return domain.ErrCartInactive
	}
	cart.Active = false
	cart.UpdatedAt = r.tx.store.now()
	r.tx.carts[id] = cart
	return nil
}

// autocommitCarts выполняет каждую операцию в собственной транзакции.
type autocommitCarts struct {
	store *Store
}

func (r *autocommitCarts) Create(ctx context.Context, customerID string) (cart domain.Cart, err error) {
	err = r.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, err = tx.Carts().Create(ctx, customerID)
		return err
	})
	return cart, err
}

func (r *autocommitCarts) AddItem(ctx context.Context, cartID, bookID int64, quantity int, unitPrice decimal.Decimal) (item domain.CartItem, err error) {
	err = r.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		item, err = tx.Carts().AddItem(ctx, cartID, bookID, quantity, unitPrice)
		return err
	})
	return item, err
}

func (r *autocommitCarts) Get(_ context.Context, id int64) (domain.Cart, error) {
	cart, ok := r.store.committedCart(id)
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cart, nil
}

func (r *autocommitCarts) Deactivate(ctx context.Context, id int64) error {
	return r.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Carts().Deactivate(ctx, id)
	})
}

var (
	_ domain.CartRepository = (*txCarts)(nil)
	_ domain.CartRepository = (*autocommitCarts)(nil)
)
