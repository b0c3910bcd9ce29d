package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// rowLock реализует эксклюзивную блокировку строки, ожидание которой прерывается по ctx.
type rowLock struct {
	ch chan struct{}
}

func (l *rowLock) lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *rowLock) unlock() {
	<-l.ch
}

type lockTable struct {
	mu   sync.Mutex
	rows map[string]*rowLock
}

func (t *lockTable) get(key string) *rowLock {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.rows[key]
	if !ok {
		l = &rowLock{ch: make(chan struct{}, 1)}
		t.rows[key] = l
	}
	return l
}

type stockKey struct {
	warehouseID int64
	bookID      int64
}

// Store хранит данные в памяти процесса, с транзакциями и построчными блокировками.
// Изменения транзакции видны другим только после commit.
type Store struct {
	mu    sync.RWMutex
	locks lockTable
	now   func() time.Time

	seq struct {
		book, warehouse, inventory, cart, cartItem int64
	}

	books      map[int64]domain.Book
	warehouses map[int64]domain.Warehouse
	inventory  map[int64]domain.Inventory
	stockIndex map[stockKey]int64
	carts      map[int64]domain.Cart
	orders     map[string]domain.Order
	numbers    map[string]string
	audit      []domain.AuditLogEntry

	outbox *outboxRepositoryInMemory
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore(options ...Option) *Store {
	s := &Store{
		locks:      lockTable{rows: make(map[string]*rowLock)},
		now:        func() time.Time { return time.Now().UTC() },
		books:      make(map[int64]domain.Book),
		warehouses: make(map[int64]domain.Warehouse),
		inventory:  make(map[int64]domain.Inventory),
		stockIndex: make(map[stockKey]int64),
		carts:      make(map[int64]domain.Cart),
		orders:     make(map[string]domain.Order),
		numbers:    make(map[string]string),
	}
	for _, option := range options {
		option(s)
	}
	s.outbox = newOutboxRepository(s.now)
	return s
}

// WithinTx выполняет fn в транзакции. При ошибке fn изменения отбрасываются.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return domain.Persistence("begin tx", err)
	}

	tx := newTx(s)
	defer tx.release()

	defer func() {
		if r := recover(); r != nil {
			err = domain.Persistence("tx panic", fmt.Errorf("%v", r))
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Persistence("commit tx", err)
	}
	return tx.commit()
}

// Ping всегда успешен: хранилище живёт в памяти процесса.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close ничего не освобождает и нужен для совместимости с domain.Storage.
func (s *Store) Close() error {
	return nil
}

// Catalog возвращает справочники и остатки.
func (s *Store) Catalog() domain.CatalogRepository {
	return &catalogRepository{store: s}
}

// Carts возвращает корзины в режиме autocommit.
func (s *Store) Carts() domain.CartRepository {
	return &autocommitCarts{store: s}
}

// Orders возвращает заказы в режиме autocommit.
func (s *Store) Orders() domain.OrderRepository {
	return &autocommitOrders{store: s}
}

// Audit возвращает журнал аудита.
func (s *Store) Audit() domain.AuditRepository {
	return &autocommitAudit{store: s}
}

// Outbox возвращает outbox-репозиторий для воркера публикации.
func (s *Store) Outbox() domain.OutboxRepository {
	return s.outbox
}

func (s *Store) committedStockIDs(bookIDs ...int64) []int64 {
	wanted := make(map[int64]struct{}, len(bookIDs))
	for _, bookID := range bookIDs {
		wanted[bookID] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, 2*len(wanted))
	for id, row := range s.inventory {
		if _, ok := wanted[row.BookID]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) committedInventory(id int64) (domain.Inventory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.inventory[id]
	return row, ok
}

func (s *Store) committedCart(id int64) (domain.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[id]
	if !ok {
		return domain.Cart{}, false
	}
	return cloneCart(cart), true
}

func (s *Store) committedOrder(id string) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return order.Clone(), true
}

func (s *Store) committedOrderID(number string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.numbers[number]
	return id, ok
}

func (s *Store) nextID(counter *int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	*counter++
	return *counter
}

func cloneCart(src domain.Cart) domain.Cart {
	dst := src
	dst.Items = append([]domain.CartItem(nil), src.Items...)
	return dst
}

var _ domain.Storage = (*Store)(nil)
