package checkout_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
	"github.com/vladislavdragonenkov/bookstore/internal/service/checkout"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

type env struct {
	store *memory.Store
	orch  *checkout.Orchestrator
	w1    domain.Warehouse
	w2    domain.Warehouse
}

func newEnv(t *testing.T, options ...checkout.Option) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	w1, err := store.Catalog().SaveWarehouse(ctx, domain.Warehouse{Code: "W1", Name: "Main"})
	require.NoError(t, err)
	w2, err := store.Catalog().SaveWarehouse(ctx, domain.Warehouse{Code: "W2", Name: "Overflow"})
	require.NoError(t, err)

	orch, err := checkout.NewOrchestrator(store, options...)
	require.NoError(t, err)
	return &env{store: store, orch: orch, w1: w1, w2: w2}
}

func (e *env) book(t *testing.T, price string, stock map[int64]int) domain.Book {
	t.Helper()
	ctx := context.Background()
	book, err := e.store.Catalog().SaveBook(ctx, domain.Book{Title: "Book " + price, Price: decimal.RequireFromString(price)})
	require.NoError(t, err)
	for warehouseID, qty := range stock {
		_, err := e.store.Catalog().SetStock(ctx, warehouseID, book.ID, qty)
		require.NoError(t, err)
	}
	return book
}

func (e *env) cart(t *testing.T, customerID string, lines ...cartLine) domain.Cart {
	t.Helper()
	ctx := context.Background()
	cart, err := e.store.Carts().Create(ctx, customerID)
	require.NoError(t, err)
	for _, line := range lines {
		_, err := e.store.Carts().AddItem(ctx, cart.ID, line.book.ID, line.qty, line.book.Price)
		require.NoError(t, err)
	}
	return cart
}

func (e *env) stock(t *testing.T, bookID, warehouseID int64) int {
	t.Helper()
	rows, err := e.store.Catalog().ListStock(context.Background(), bookID)
	require.NoError(t, err)
	for _, row := range rows {
		if row.WarehouseID == warehouseID {
			return row.Quantity
		}
	}
	t.Fatalf("no stock row for book %d in warehouse %d", bookID, warehouseID)
	return 0
}

func (e *env) auditEntries(t *testing.T) []domain.AuditLogEntry {
	t.Helper()
	entries, err := e.store.Audit().List(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	return entries
}

func (e *env) pendingOutbox(t *testing.T) []domain.OutboxMessage {
	t.Helper()
	msgs, err := e.store.Outbox().PullPending(context.Background(), 100)
	require.NoError(t, err)
	return msgs
}

type cartLine struct {
	book domain.Book
	qty  int
}

func ptr(s string) *string { return &s }

func TestCheckout_HappyPath(t *testing.T) {
	e := newEnv(t)
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 5})
	cart := e.cart(t, "customer-1", cartLine{book: book, qty: 2})

	order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID, ActorID: ptr("clerk-7")})
	require.NoError(t, err)

	require.Equal(t, domain.OrderStatusPaid, order.Status)
	require.True(t, order.TotalAmount.Equal(decimal.RequireFromString("20.00")))
	require.Equal(t, "customer-1", order.CustomerID)
	require.NotNil(t, order.LockedAt)
	require.Len(t, order.Lines, 1)
	require.Equal(t, e.w1.ID, order.Lines[0].WarehouseID)
	require.Equal(t, 3, e.stock(t, book.ID, e.w1.ID))

	stored, err := e.orch.GetOrder(context.Background(), order.Number)
	require.NoError(t, err)
	require.Equal(t, order.ID, stored.ID)

	gotCart, err := e.store.Carts().Get(context.Background(), cart.ID)
	require.NoError(t, err)
	require.False(t, gotCart.Active)

	entries := e.auditEntries(t)
	require.Len(t, entries, 1)
	require.Equal(t, domain.AuditActionCheckout, entries[0].Action)
	require.Equal(t, fmt.Sprintf("Order %s created", order.Number), entries[0].Description)
	require.NotNil(t, entries[0].OrderID)
	require.Equal(t, order.ID, *entries[0].OrderID)
	require.Equal(t, "clerk-7", *entries[0].ActorID)

	msgs := e.pendingOutbox(t)
	require.Len(t, msgs, 1)
	require.Equal(t, domain.EventOrderCheckedOut, msgs[0].EventType)
	require.Equal(t, order.ID, msgs[0].AggregateID)

	var event checkout.OrderEvent
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &event))
	require.Equal(t, order.Number, event.OrderNumber)
	require.Equal(t, "20.00", event.TotalAmount)
	require.Len(t, event.Lines, 1)
}

func TestCheckout_TotalIsExactDecimal(t *testing.T) {
	e := newEnv(t)
	a := e.book(t, "12.17", map[int64]int{e.w1.ID: 10})
	b := e.book(t, "0.01", map[int64]int{e.w2.ID: 10})
	c := e.book(t, "0.10", map[int64]int{e.w1.ID: 10})
	cart := e.cart(t, "customer-1", cartLine{a, 3}, cartLine{b, 1}, cartLine{c, 3})

	order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.NoError(t, err)
	require.Equal(t, "36.82", order.TotalAmount.StringFixed(2))
	require.True(t, order.TotalAmount.Equal(order.LinesTotal()))
	require.Equal(t, e.w2.ID, order.Lines[1].WarehouseID)
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := newEnv(t)
	cart := e.cart(t, "customer-1")

	_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	require.Equal(t, domain.KindEmptyCart, domain.KindOf(err))

	gotCart, err := e.store.Carts().Get(context.Background(), cart.ID)
	require.NoError(t, err)
	require.True(t, gotCart.Active)
	require.Empty(t, e.auditEntries(t))
	require.Empty(t, e.pendingOutbox(t))

	orders, err := e.orch.ListCustomerOrders(context.Background(), "customer-1", 0)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestCheckout_UnknownCart(t *testing.T) {
	e := newEnv(t)

	_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: 404})
	require.ErrorIs(t, err, domain.ErrCartNotFound)
	require.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestCheckout_InsufficientStockLeavesEverythingUnchanged(t *testing.T) {
	e := newEnv(t)
	plenty := e.book(t, "5.00", map[int64]int{e.w1.ID: 10})
	scarce := e.book(t, "7.00", map[int64]int{e.w1.ID: 2, e.w2.ID: 2})
	cart := e.cart(t, "customer-1", cartLine{plenty, 4}, cartLine{scarce, 3})

	_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	require.Equal(t, scarce.ID, derr.BookID)

	require.Equal(t, 10, e.stock(t, plenty.ID, e.w1.ID), "earlier line allocation must be rolled back")
	require.Equal(t, 2, e.stock(t, scarce.ID, e.w1.ID))
	require.Equal(t, 2, e.stock(t, scarce.ID, e.w2.ID))

	orders, err := e.orch.ListCustomerOrders(context.Background(), "customer-1", 0)
	require.NoError(t, err)
	require.Empty(t, orders)

	gotCart, err := e.store.Carts().Get(context.Background(), cart.ID)
	require.NoError(t, err)
	require.True(t, gotCart.Active)
	require.Empty(t, e.auditEntries(t))
	require.Empty(t, e.pendingOutbox(t))
}

func TestCheckout_NoInventory(t *testing.T) {
	e := newEnv(t)
	ghost := e.book(t, "3.00", nil)
	cart := e.cart(t, "customer-1", cartLine{ghost, 1})

	_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.ErrorIs(t, err, domain.ErrNoInventory)
}

func TestCheckout_ConsumedCartIsInactive(t *testing.T) {
	e := newEnv(t)
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 5})
	cart := e.cart(t, "customer-1", cartLine{book, 1})

	_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.NoError(t, err)

	_, err = e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.ErrorIs(t, err, domain.ErrCartInactive)
	require.Equal(t, 4, e.stock(t, book.ID, e.w1.ID))
}

func TestCheckout_ExplicitOrderNumberConflict(t *testing.T) {
	e := newEnv(t)
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 5})
	first := e.cart(t, "customer-1", cartLine{book, 1})
	second := e.cart(t, "customer-2", cartLine{book, 1})

	order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: first.ID, OrderNumber: "ORD-FIXED"})
	require.NoError(t, err)
	require.Equal(t, "ORD-FIXED", order.Number)

	_, err = e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: second.ID, OrderNumber: "ORD-FIXED"})
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.ErrorIs(t, err, domain.ErrOrderNumberTaken)
	require.Equal(t, 4, e.stock(t, book.ID, e.w1.ID))
}

func TestCheckout_GeneratedNumberCollisionIsRetried(t *testing.T) {
	var calls atomic.Int64
	gen := func(time.Time) string {
		if calls.Add(1) <= 2 {
			return "ORD-DUP"
		}
		return "ORD-FRESH"
	}
	e := newEnv(t, checkout.WithNumberGenerator(gen))
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 5})
	first := e.cart(t, "customer-1", cartLine{book, 1})
	second := e.cart(t, "customer-1", cartLine{book, 1})

	_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: first.ID})
	require.NoError(t, err)

	order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: second.ID})
	require.NoError(t, err)
	require.Equal(t, "ORD-FRESH", order.Number)
	require.Equal(t, 3, e.stock(t, book.ID, e.w1.ID))
}

func TestCheckout_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	e := newEnv(t)
	const initial, buyers = 7, 24
	book := e.book(t, "9.99", map[int64]int{e.w1.ID: initial})

	carts := make([]domain.Cart, buyers)
	for i := range carts {
		carts[i] = e.cart(t, fmt.Sprintf("customer-%d", i), cartLine{book, 1})
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		short     atomic.Int64
		other     atomic.Int64
	)
	for _, cart := range carts {
		wg.Add(1)
		go func(cartID int64) {
			defer wg.Done()
			_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cartID})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				short.Add(1)
			default:
				other.Add(1)
			}
		}(cart.ID)
	}
	wg.Wait()

	require.EqualValues(t, initial, succeeded.Load())
	require.EqualValues(t, buyers-initial, short.Load())
	require.Zero(t, other.Load())
	require.Equal(t, 0, e.stock(t, book.ID, e.w1.ID))
	require.Len(t, e.auditEntries(t), initial)
}

func TestCheckout_LockWaitBoundedByTimeout(t *testing.T) {
	e := newEnv(t, checkout.WithTimeout(50*time.Millisecond))
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 5})
	cart := e.cart(t, "customer-1", cartLine{book, 1})

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- e.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
			if _, err := tx.Inventory().LockByBook(ctx, book.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	close(release)
	require.NoError(t, <-done)

	require.ErrorIs(t, err, domain.ErrPersistence)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 5, e.stock(t, book.ID, e.w1.ID))

	gotCart, err := e.store.Carts().Get(context.Background(), cart.ID)
	require.NoError(t, err)
	require.True(t, gotCart.Active)
}

// slowStorage задерживает транзакцию после каждой блокировки остатков,
// чтобы параллельные checkout гарантированно пересеклись.
type slowStorage struct {
	*memory.Store
	delay time.Duration
}

func (s slowStorage) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return fn(ctx, slowTx{Tx: tx, delay: s.delay})
	})
}

type slowTx struct {
	domain.Tx
	delay time.Duration
}

func (t slowTx) Inventory() domain.InventoryRepository {
	return slowInventory{InventoryRepository: t.Tx.Inventory(), delay: t.delay}
}

type slowInventory struct {
	domain.InventoryRepository
	delay time.Duration
}

func (r slowInventory) LockByBook(ctx context.Context, bookID int64) ([]domain.Inventory, error) {
	rows, err := r.InventoryRepository.LockByBook(ctx, bookID)
	time.Sleep(r.delay)
	return rows, err
}

func (r slowInventory) LockByBooks(ctx context.Context, bookIDs []int64) ([]domain.Inventory, error) {
	rows, err := r.InventoryRepository.LockByBooks(ctx, bookIDs)
	time.Sleep(r.delay)
	return rows, err
}

func TestCheckout_OppositeLineOrderDoesNotDeadlock(t *testing.T) {
	e := newEnv(t)
	a := e.book(t, "3.00", map[int64]int{e.w1.ID: 10})
	b := e.book(t, "4.00", map[int64]int{e.w1.ID: 10})
	first := e.cart(t, "customer-1", cartLine{a, 1}, cartLine{b, 1})
	second := e.cart(t, "customer-2", cartLine{b, 1}, cartLine{a, 1})

	orch, err := checkout.NewOrchestrator(slowStorage{Store: e.store, delay: 50 * time.Millisecond},
		checkout.WithTimeout(2*time.Second))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, cartID := range []int64{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, cartID int64) {
			defer wg.Done()
			_, errs[i] = orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cartID})
		}(i, cartID)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 8, e.stock(t, a.ID, e.w1.ID))
	require.Equal(t, 8, e.stock(t, b.ID, e.w1.ID))
}

func TestCancel_OppositeLineOrderDoesNotDeadlock(t *testing.T) {
	e := newEnv(t)
	a := e.book(t, "3.00", map[int64]int{e.w1.ID: 10})
	b := e.book(t, "4.00", map[int64]int{e.w1.ID: 10})

	first, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{
		CartID: e.cart(t, "customer-1", cartLine{a, 1}, cartLine{b, 1}).ID,
	})
	require.NoError(t, err)
	second, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{
		CartID: e.cart(t, "customer-2", cartLine{b, 1}, cartLine{a, 1}).ID,
	})
	require.NoError(t, err)

	orch, err := checkout.NewOrchestrator(slowStorage{Store: e.store, delay: 50 * time.Millisecond},
		checkout.WithTimeout(2*time.Second))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, number := range []string{first.Number, second.Number} {
		wg.Add(1)
		go func(i int, number string) {
			defer wg.Done()
			_, errs[i] = orch.TransitionOrder(context.Background(), checkout.TransitionRequest{
				OrderNumber: number,
				Target:      domain.OrderStatusCancelled,
			})
		}(i, number)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 10, e.stock(t, a.ID, e.w1.ID))
	require.Equal(t, 10, e.stock(t, b.ID, e.w1.ID))
}

func TestTransitionOrder(t *testing.T) {
	e := newEnv(t)
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 5})
	cart := e.cart(t, "customer-1", cartLine{book, 2})
	order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.NoError(t, err)

	shipped, err := e.orch.TransitionOrder(context.Background(), checkout.TransitionRequest{OrderNumber: order.Number, Target: "shipped", ActorID: ptr("clerk")})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusShipped, shipped.Status)
	require.Equal(t, order.Version+1, shipped.Version)

	_, err = e.orch.TransitionOrder(context.Background(), checkout.TransitionRequest{OrderNumber: order.Number, Target: domain.OrderStatusPending})
	require.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, err = e.orch.TransitionOrder(context.Background(), checkout.TransitionRequest{OrderNumber: order.Number, Target: "BOGUS"})
	require.ErrorIs(t, err, domain.ErrUnknownStatus)

	_, err = e.orch.TransitionOrder(context.Background(), checkout.TransitionRequest{OrderNumber: "ORD-MISSING", Target: domain.OrderStatusShipped})
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	cancelled, err := e.orch.TransitionOrder(context.Background(), checkout.TransitionRequest{OrderNumber: order.Number, Target: domain.OrderStatusCancelled})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, 3, e.stock(t, book.ID, e.w1.ID), "shipped goods are not restocked")

	entries, err := e.orch.ListAuditLog(context.Background(), domain.AuditFilter{OrderID: order.ID})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, fmt.Sprintf("Order %s status SHIPPED -> CANCELLED", order.Number), entries[0].Description)
	require.Equal(t, domain.AuditActionCheckout, entries[2].Action)

	msgs := e.pendingOutbox(t)
	require.Len(t, msgs, 3)
	require.Equal(t, domain.EventOrderStatusChanged, msgs[2].EventType)

	var event checkout.OrderEvent
	require.NoError(t, json.Unmarshal(msgs[2].Payload, &event))
	require.Equal(t, "SHIPPED", event.PreviousStatus)
	require.Equal(t, "CANCELLED", event.Status)
}

func TestTransitionOrder_CancelPaidOrderRestocks(t *testing.T) {
	e := newEnv(t)
	a := e.book(t, "10.00", map[int64]int{e.w1.ID: 1, e.w2.ID: 5})
	b := e.book(t, "4.00", map[int64]int{e.w1.ID: 3})
	cart := e.cart(t, "customer-1", cartLine{a, 2}, cartLine{b, 3})
	order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.NoError(t, err)
	require.Equal(t, 3, e.stock(t, a.ID, e.w2.ID))
	require.Equal(t, 0, e.stock(t, b.ID, e.w1.ID))

	_, err = e.orch.TransitionOrder(context.Background(), checkout.TransitionRequest{OrderNumber: order.Number, Target: domain.OrderStatusCancelled})
	require.NoError(t, err)

	require.Equal(t, 1, e.stock(t, a.ID, e.w1.ID))
	require.Equal(t, 5, e.stock(t, a.ID, e.w2.ID), "stock returns to the warehouse recorded on the line")
	require.Equal(t, 3, e.stock(t, b.ID, e.w1.ID))

	// Повторная отмена не возвращает остатки второй раз.
	_, err = e.orch.TransitionOrder(context.Background(), checkout.TransitionRequest{OrderNumber: order.Number, Target: domain.OrderStatusCancelled})
	require.NoError(t, err)
	require.Equal(t, 5, e.stock(t, a.ID, e.w2.ID))
}

func TestDeleteOrder(t *testing.T) {
	e := newEnv(t)
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 5})
	cart := e.cart(t, "customer-1", cartLine{book, 1})
	order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.NoError(t, err)

	require.NoError(t, e.orch.DeleteOrder(context.Background(), checkout.DeleteRequest{OrderNumber: order.Number, ActorID: ptr("admin")}))

	_, err = e.orch.GetOrder(context.Background(), order.Number)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.ErrorIs(t, e.orch.DeleteOrder(context.Background(), checkout.DeleteRequest{OrderNumber: order.Number}), domain.ErrOrderNotFound)
	require.ErrorIs(t, e.orch.DeleteOrder(context.Background(), checkout.DeleteRequest{}), domain.ErrInvalidArgument)

	entries := e.auditEntries(t)
	require.Len(t, entries, 2)
	require.Equal(t, domain.AuditActionDelete, entries[0].Action)
	for _, entry := range entries {
		require.Nil(t, entry.OrderID, "audit entries outlive the deleted order")
	}

	msgs := e.pendingOutbox(t)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.EventOrderDeleted, msgs[1].EventType)
}

func TestListCustomerOrders(t *testing.T) {
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	var tick atomic.Int64
	now := func() time.Time { return clock.Add(time.Duration(tick.Add(1)) * time.Second) }

	e := newEnv(t, checkout.WithClock(now))
	book := e.book(t, "1.00", map[int64]int{e.w1.ID: 10})
	var numbers []string
	for i := 0; i < 3; i++ {
		cart := e.cart(t, "customer-1", cartLine{book, 1})
		order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
		require.NoError(t, err)
		numbers = append(numbers, order.Number)
	}

	orders, err := e.orch.ListCustomerOrders(context.Background(), "customer-1", 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, numbers[2], orders[0].Number)
	require.Equal(t, numbers[1], orders[1].Number)

	_, err = e.orch.ListCustomerOrders(context.Background(), " ", 0)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = e.orch.ListCustomerOrders(context.Background(), "customer-1", -1)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCheckout_InjectedStateMachine(t *testing.T) {
	machine, err := domain.NewStateMachine([]domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusPaid,
		domain.OrderStatusShipped,
		domain.OrderStatusCancelled,
	})
	require.NoError(t, err)

	e := newEnv(t, checkout.WithStateMachine(machine))
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 5})
	cart := e.cart(t, "customer-1", cartLine{book, 1})
	order, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: cart.ID})
	require.NoError(t, err)

	_, err = e.orch.TransitionOrder(context.Background(), checkout.TransitionRequest{OrderNumber: order.Number, Target: domain.OrderStatusDelivered})
	require.ErrorIs(t, err, domain.ErrUnknownStatus)
}

func TestCheckout_MetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	e := newEnv(t,
		checkout.WithMetrics(metrics.NewCheckoutMetricsWithRegisterer(reg)),
		checkout.WithTracer(provider.Tracer("test")),
	)
	book := e.book(t, "10.00", map[int64]int{e.w1.ID: 2})
	ok := e.cart(t, "customer-1", cartLine{book, 2})
	tooMuch := e.cart(t, "customer-2", cartLine{book, 1})

	_, err := e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: ok.ID})
	require.NoError(t, err)
	_, err = e.orch.Checkout(context.Background(), checkout.CheckoutRequest{CartID: tooMuch.ID})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, 2.0, values["bookstore_checkout_started_total"])
	require.Equal(t, 1.0, values["bookstore_checkout_succeeded_total"])
	require.Equal(t, 1.0, values["bookstore_checkout_failed_total"])
	require.Equal(t, 2.0, values["bookstore_inventory_allocated_units_total"])
	require.Equal(t, 0.0, values["bookstore_checkout_in_flight"])

	var checkoutSpans, allocateSpans int
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "checkout":
			checkoutSpans++
		case "inventory.allocate":
			allocateSpans++
		}
	}
	require.Equal(t, 2, checkoutSpans)
	require.Equal(t, 2, allocateSpans)
}

func TestDefaultNumberGenerator(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 30, 5, 123456000, time.UTC)
	number := checkout.DefaultNumberGenerator(now)

	require.Regexp(t, regexp.MustCompile(`^ORD-20261016093005123456-[0-9a-f]{4}$`), number)
}

func TestNewOrchestratorRequiresStorage(t *testing.T) {
	_, err := checkout.NewOrchestrator(nil)
	require.Error(t, err)
}
