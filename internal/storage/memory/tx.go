package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// memTx буферизует изменения и держит блокировки строк до commit/rollback.
type memTx struct {
	store *Store
	held  map[string]*rowLock
	order []string

	inventory     map[int64]domain.Inventory
	carts         map[int64]domain.Cart
	orders        map[string]domain.Order
	createdOrders map[string]struct{}
	deletedOrders map[string]struct{}
	audit         []domain.AuditLogEntry
	outbox        []domain.OutboxMessage
}

func newTx(store *Store) *memTx {
	return &memTx{
		store:         store,
		held:          make(map[string]*rowLock),
		inventory:     make(map[int64]domain.Inventory),
		carts:         make(map[int64]domain.Cart),
		orders:        make(map[string]domain.Order),
		createdOrders: make(map[string]struct{}),
		deletedOrders: make(map[string]struct{}),
	}
}

func (t *memTx) Inventory() domain.InventoryRepository { return &txInventory{tx: t} }
func (t *memTx) Carts() domain.CartRepository          { return &txCarts{tx: t} }
func (t *memTx) Orders() domain.OrderRepository        { return &txOrders{tx: t} }
func (t *memTx) Audit() domain.AuditRepository         { return &txAudit{tx: t} }
func (t *memTx) Outbox() domain.OutboxWriter           { return &txOutbox{tx: t} }

// lock захватывает блокировку строки; повторный захват в той же транзакции бесплатен.
func (t *memTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	l := t.store.locks.get(key)
	if err := l.lock(ctx); err != nil {
		return domain.Persistence(fmt.Sprintf("lock %s", key), err)
	}
	t.held[key] = l
	t.order = append(t.order, key)
	return nil
}

func (t *memTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.held[t.order[i]].unlock()
	}
	t.held = map[string]*rowLock{}
	t.order = nil
}

func (t *memTx) cart(id int64) (domain.Cart, bool) {
	if cart, ok := t.carts[id]; ok {
		return cloneCart(cart), true
	}
	return t.store.committedCart(id)
}

func (t *memTx) inventoryRow(id int64) (domain.Inventory, bool) {
	if row, ok := t.inventory[id]; ok {
		return row, true
	}
	return t.store.committedInventory(id)
}

func (t *memTx) orderByID(id string) (domain.Order, bool) {
	if _, deleted := t.deletedOrders[id]; deleted {
		return domain.Order{}, false
	}
	if order, ok := t.orders[id]; ok {
		return order.Clone(), true
	}
	return t.store.committedOrder(id)
}

func (t *memTx) orderIDByNumber(number string) (string, bool) {
	for id, order := range t.orders {
		if order.Number == number {
			if _, deleted := t.deletedOrders[id]; deleted {
				return "", false
			}
			return id, true
		}
	}
	id, ok := t.store.committedOrderID(number)
	if !ok {
		return "", false
	}
	if _, deleted := t.deletedOrders[id]; deleted {
		return "", false
	}
	return id, true
}

// commit применяет буфер атомарно под эксклюзивной блокировкой хранилища.
func (t *memTx) commit() error {
	s := t.store
	s.mu.Lock()

	for id := range t.createdOrders {
		if _, deleted := t.deletedOrders[id]; deleted {
			continue
		}
		order := t.orders[id]
		if existing, taken := s.numbers[order.Number]; taken && existing != id {
			s.mu.Unlock()
			return domain.Persistence("commit order", fmt.Errorf("%w: %s", domain.ErrOrderNumberTaken, order.Number))
		}
	}

	for id, row := range t.inventory {
		s.inventory[id] = row
	}
	for id, cart := range t.carts {
		s.carts[id] = cloneCart(cart)
	}
	for id, order := range t.orders {
		if _, deleted := t.deletedOrders[id]; deleted {
			continue
		}
		s.orders[id] = order.Clone()
		s.numbers[order.Number] = id
	}
	for id := range t.deletedOrders {
		if order, ok := s.orders[id]; ok {
			delete(s.numbers, order.Number)
			delete(s.orders, id)
		}
	}
	for _, entry := range t.audit {
		if entry.OrderID != nil {
			if _, deleted := t.deletedOrders[*entry.OrderID]; deleted {
				entry.OrderID = nil
			}
		}
		s.audit = append(s.audit, entry)
	}
	if len(t.deletedOrders) > 0 {
		for i := range s.audit {
			if s.audit[i].OrderID == nil {
				continue
			}
			if _, deleted := t.deletedOrders[*s.audit[i].OrderID]; deleted {
				s.audit[i].OrderID = nil
			}
		}
	}
	s.mu.Unlock()

	for _, msg := range t.outbox {
		s.outbox.append(msg)
	}
	return nil
}
