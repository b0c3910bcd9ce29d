package inventory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/inventory"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

type seeded struct {
	store *memory.Store
	book  domain.Book
	w1    domain.Warehouse
	w2    domain.Warehouse
}

func seed(t *testing.T, q1, q2 int) seeded {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	book, err := store.Catalog().SaveBook(ctx, domain.Book{ISBN: "978-1", Title: "Book", Price: decimal.RequireFromString("10.00")})
	require.NoError(t, err)
	w1, err := store.Catalog().SaveWarehouse(ctx, domain.Warehouse{Code: "W1"})
	require.NoError(t, err)
	w2, err := store.Catalog().SaveWarehouse(ctx, domain.Warehouse{Code: "W2"})
	require.NoError(t, err)
	_, err = store.Catalog().SetStock(ctx, w1.ID, book.ID, q1)
	require.NoError(t, err)
	_, err = store.Catalog().SetStock(ctx, w2.ID, book.ID, q2)
	require.NoError(t, err)

	return seeded{store: store, book: book, w1: w1, w2: w2}
}

func quantities(t *testing.T, s seeded) []int {
	t.Helper()
	rows, err := s.store.Catalog().ListStock(context.Background(), s.book.ID)
	require.NoError(t, err)
	result := make([]int, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.Quantity)
	}
	return result
}

func allocateAny(s seeded, ledger *inventory.Ledger, bookID int64, amount int) (row domain.Inventory, err error) {
	err = s.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		row, err = ledger.AllocateAny(ctx, tx.Inventory(), bookID, amount)
		return err
	})
	return row, err
}

func TestLedger_AllocateAnyPicksFirstSufficientRow(t *testing.T) {
	s := seed(t, 1, 5)
	ledger := inventory.NewLedger()

	row, err := allocateAny(s, ledger, s.book.ID, 3)
	require.NoError(t, err)
	require.Equal(t, s.w2.ID, row.WarehouseID)
	require.Equal(t, 2, row.Quantity)
	require.Equal(t, []int{1, 2}, quantities(t, s))

	row, err = allocateAny(s, ledger, s.book.ID, 1)
	require.NoError(t, err)
	require.Equal(t, s.w1.ID, row.WarehouseID, "lower id wins when it covers the amount")
	require.Equal(t, []int{0, 2}, quantities(t, s))
}

func TestLedger_AllocateAnyDoesNotSplit(t *testing.T) {
	s := seed(t, 3, 3)
	ledger := inventory.NewLedger()

	_, err := allocateAny(s, ledger, s.book.ID, 4)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	require.Equal(t, s.book.ID, derr.BookID)
	require.Equal(t, []int{3, 3}, quantities(t, s))
}

func TestLedger_AllocateAnyWithoutRows(t *testing.T) {
	s := seed(t, 1, 1)
	ledger := inventory.NewLedger()

	_, err := allocateAny(s, ledger, s.book.ID+42, 1)
	require.ErrorIs(t, err, domain.ErrNoInventory)
	require.Equal(t, domain.KindNoInventory, domain.KindOf(err))
}

func TestLedger_ZeroAndNegativeAmount(t *testing.T) {
	s := seed(t, 2, 0)
	ledger := inventory.NewLedger()

	row, err := allocateAny(s, ledger, s.book.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 2, row.Quantity)

	_, err = allocateAny(s, ledger, s.book.ID, -1)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	require.Equal(t, []int{2, 0}, quantities(t, s))
}

func TestLedger_AllocateAndRestockSpecificWarehouse(t *testing.T) {
	s := seed(t, 2, 5)
	ledger := inventory.NewLedger()
	ctx := context.Background()

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ledger.Allocate(ctx, tx.Inventory(), s.w1.ID, s.book.ID, 3)
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := ledger.Allocate(ctx, tx.Inventory(), s.w2.ID, s.book.ID, 4); err != nil {
			return err
		}
		_, err := ledger.Restock(ctx, tx.Inventory(), s.w1.ID, s.book.ID, 2)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, []int{4, 1}, quantities(t, s))

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ledger.Restock(ctx, tx.Inventory(), s.w1.ID+99, s.book.ID, 1)
		return err
	})
	require.ErrorIs(t, err, domain.ErrNoInventory)
}

func TestLedger_RollbackKeepsStock(t *testing.T) {
	s := seed(t, 5, 0)
	ledger := inventory.NewLedger()

	err := s.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if _, err := ledger.AllocateAny(ctx, tx.Inventory(), s.book.ID, 2); err != nil {
			return err
		}
		return domain.ErrEmptyCart
	})
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	require.Equal(t, []int{5, 0}, quantities(t, s))
}

func TestLedger_ConcurrentAllocationsNeverOversell(t *testing.T) {
	s := seed(t, 10, 0)
	ledger := inventory.NewLedger()

	const workers = 32
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		short     atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := allocateAny(s, ledger, s.book.ID, 1)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 10, succeeded.Load())
	require.EqualValues(t, workers-10, short.Load())
	require.Equal(t, []int{0, 0}, quantities(t, s))
}

func TestLedger_RecordsSpans(t *testing.T) {
	s := seed(t, 1, 0)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ledger := inventory.NewLedger(inventory.WithTracer(provider.Tracer("test")))

	_, err := allocateAny(s, ledger, s.book.ID, 1)
	require.NoError(t, err)
	_, err = allocateAny(s, ledger, s.book.ID, 1)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "inventory.allocate", spans[0].Name())
	require.Empty(t, spans[0].Events())
	require.NotEmpty(t, spans[1].Events(), "failed allocation must record the error")
}

func TestLedger_LockBooksHoldsRowsUntilCommit(t *testing.T) {
	s := seed(t, 3, 4)
	ledger := inventory.NewLedger()

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
			if err := ledger.LockBooks(ctx, tx.Inventory(), []int64{s.book.ID, s.book.ID}); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := ledger.AllocateAny(ctx, tx.Inventory(), s.book.ID, 1)
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)

	_, err = allocateAny(s, ledger, s.book.ID, 1)
	require.NoError(t, err)
	require.Equal(t, []int{2, 4}, quantities(t, s))
}
