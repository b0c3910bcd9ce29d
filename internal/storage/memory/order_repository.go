package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func orderLockKey(id string) string {
	return "order:" + id
}

type txOrders struct {
	tx *memTx
}

// Create регистрирует заказ в транзакции. Номер резервируется блокировкой,
// поэтому параллельная транзакция с тем же номером ждёт commit и получает конфликт.
func (r *txOrders) Create(ctx context.Context, order domain.Order) error {
	if order.ID == "" || order.Number == "" {
		return domain.InvalidArgument("order id and number are required")
	}
	if err := r.tx.lock(ctx, "order-number:"+order.Number); err != nil {
		return err
	}
	if _, taken := r.tx.orderIDByNumber(order.Number); taken {
		return domain.Persistence("create order", domain.ErrOrderNumberTaken)
	}
	if _, exists := r.tx.orderByID(order.ID); exists {
		return domain.Persistence("create order", domain.ErrOrderVersionConflict)
	}

	r.tx.orders[order.ID] = order.Clone()
	r.tx.createdOrders[order.ID] = struct{}{}
	return nil
}

func (r *txOrders) GetByNumber(_ context.Context, number string) (domain.Order, error) {
	id, ok := r.tx.orderIDByNumber(number)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, ok := r.tx.orderByID(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *txOrders) LockByNumber(ctx context.Context, number string) (domain.Order, error) {
	id, ok := r.tx.orderIDByNumber(number)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err := r.tx.lock(ctx, orderLockKey(id)); err != nil {
		return domain.Order{}, err
	}
	// После ожидания блокировки заказ мог быть удалён другой транзакцией.
	order, ok := r.tx.orderByID(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (r *txOrders) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	s := r.tx.store
	s.mu.RLock()
	byID := make(map[string]domain.Order)
	for id, order := range s.orders {
		if order.CustomerID == customerID {
			byID[id] = order.Clone()
		}
	}
	s.mu.RUnlock()

	for id, order := range r.tx.orders {
		if order.CustomerID == customerID {
			byID[id] = order.Clone()
		}
	}
	for id := range r.tx.deletedOrders {
		delete(byID, id)
	}

	return sortAndLimitOrders(byID, limit), nil
}

// Save обновляет статус заказа с проверкой версии.
func (r *txOrders) Save(_ context.Context, order domain.Order) error {
	current, ok := r.tx.orderByID(order.ID)
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	current.Status = order.Status
	current.TotalAmount = order.TotalAmount
	current.UpdatedAt = order.UpdatedAt
	current.Version++
	r.tx.orders[order.ID] = current
	return nil
}

func (r *txOrders) Delete(_ context.Context, id string) error {
	if _, ok := r.tx.orderByID(id); !ok {
		return domain.ErrOrderNotFound
	}
	r.tx.deletedOrders[id] = struct{}{}
	return nil
}

// autocommitOrders читает зафиксированное состояние, записи выполняет в своей транзакции.
type autocommitOrders struct {
	store *Store
}

func (r *autocommitOrders) Create(ctx context.Context, order domain.Order) error {
	return r.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Orders().Create(ctx, order)
	})
}

func (r *autocommitOrders) GetByNumber(_ context.Context, number string) (domain.Order, error) {
	id, ok := r.store.committedOrderID(number)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	order, ok := r.store.committedOrder(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// LockByNumber вне транзакции блокировку не держит и равносилен чтению.
func (r *autocommitOrders) LockByNumber(ctx context.Context, number string) (domain.Order, error) {
	return r.GetByNumber(ctx, number)
}

func (r *autocommitOrders) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	s := r.store
	s.mu.RLock()
	byID := make(map[string]domain.Order)
	for id, order := range s.orders {
		if order.CustomerID == customerID {
			byID[id] = order.Clone()
		}
	}
	s.mu.RUnlock()

	return sortAndLimitOrders(byID, limit), nil
}

func (r *autocommitOrders) Save(ctx context.Context, order domain.Order) error {
	return r.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Orders().Save(ctx, order)
	})
}

func (r *autocommitOrders) Delete(ctx context.Context, id string) error {
	return r.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Orders().Delete(ctx, id)
	})
}

func sortAndLimitOrders(byID map[string]domain.Order, limit int) []domain.Order {
	result := make([]domain.Order, 0, len(byID))
	for _, order := range byID {
		result = append(result, order)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

var (
	_ domain.OrderRepository = (*txOrders)(nil)
	_ domain.OrderRepository = (*autocommitOrders)(nil)
)
