package inventory

import (
	"context"
	"slices"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const tracerName = "github.com/vladislavdragonenkov/bookstore/internal/service/inventory"

// Ledger остаётся единственной точкой изменения складских остатков.
// Все методы работают внутри транзакции вызывающего кода и блокируют строку до чтения.
type Ledger struct {
	logger *log.Entry
	tracer trace.Tracer
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer задаёт tracer для спанов аллокации.
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Ledger) {
		if tracer != nil {
			l.tracer = tracer
		}
	}
}

// NewLedger создаёт ledger.
func NewLedger(options ...Option) *Ledger {
	l := &Ledger{
		logger: log.WithField("component", "inventory-ledger"),
		tracer: otel.Tracer(tracerName),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Allocate списывает amount с конкретной строки (warehouse, book).
func (l *Ledger) Allocate(ctx context.Context, repo domain.InventoryRepository, warehouseID, bookID int64, amount int) (domain.Inventory, error) {
	ctx, span := l.startSpan(ctx, "inventory.allocate", bookID, amount)
	defer span.End()

	if amount < 0 {
		return domain.Inventory{}, fail(span, domain.InvalidArgument("allocation amount must be non-negative, got %d", amount))
	}

	row, err := repo.Lock(ctx, warehouseID, bookID)
	if err != nil {
		return domain.Inventory{}, fail(span, err)
	}
	if row.Quantity < amount {
		return domain.Inventory{}, fail(span, domain.InsufficientStock(bookID))
	}
	return l.write(ctx, span, repo, row, row.Quantity-amount)
}

// AllocateAny перебирает строки книги в порядке id и списывает amount с первой,
// которая покрывает его целиком. Разбиение между складами не выполняется.
func (l *Ledger) AllocateAny(ctx context.Context, repo domain.InventoryRepository, bookID int64, amount int) (domain.Inventory, error) {
	ctx, span := l.startSpan(ctx, "inventory.allocate", bookID, amount)
	defer span.End()

	if amount < 0 {
		return domain.Inventory{}, fail(span, domain.InvalidArgument("allocation amount must be non-negative, got %d", amount))
	}

	rows, err := repo.LockByBook(ctx, bookID)
	if err != nil {
		return domain.Inventory{}, fail(span, err)
	}
	if len(rows) == 0 {
		return domain.Inventory{}, fail(span, domain.NoInventory(bookID))
	}
	for _, row := range rows {
		if row.Quantity >= amount {
			return l.write(ctx, span, repo, row, row.Quantity-amount)
		}
	}

	l.logger.WithFields(log.Fields{
		"book_id":    bookID,
		"amount":     amount,
		"candidates": len(rows),
	}).Debug("no warehouse covers requested amount")
	return domain.Inventory{}, fail(span, domain.InsufficientStock(bookID))
}

// LockBooks заранее блокирует все строки перечисленных книг в порядке возрастания id.
// Транзакции, затрагивающие одни и те же книги, захватывают строки в одной
// последовательности и не блокируют друг друга по кругу.
func (l *Ledger) LockBooks(ctx context.Context, repo domain.InventoryRepository, bookIDs []int64) error {
	ctx, span := l.tracer.Start(ctx, "inventory.lock", trace.WithAttributes(
		attribute.Int("inventory.books", len(bookIDs)),
	))
	defer span.End()

	rows, err := repo.LockByBooks(ctx, uniqueSorted(bookIDs))
	if err != nil {
		return fail(span, err)
	}
	span.SetAttributes(attribute.Int("inventory.rows", len(rows)))
	return nil
}

// Restock возвращает amount на строку (warehouse, book). Используется при отмене заказа.
func (l *Ledger) Restock(ctx context.Context, repo domain.InventoryRepository, warehouseID, bookID int64, amount int) (domain.Inventory, error) {
	ctx, span := l.startSpan(ctx, "inventory.restock", bookID, amount)
	defer span.End()

	if amount < 0 {
		return domain.Inventory{}, fail(span, domain.InvalidArgument("restock amount must be non-negative, got %d", amount))
	}

	row, err := repo.Lock(ctx, warehouseID, bookID)
	if err != nil {
		return domain.Inventory{}, fail(span, err)
	}
	return l.write(ctx, span, repo, row, row.Quantity+amount)
}

func (l *Ledger) write(ctx context.Context, span trace.Span, repo domain.InventoryRepository, row domain.Inventory, quantity int) (domain.Inventory, error) {
	if err := repo.UpdateQuantity(ctx, row.ID, quantity); err != nil {
		return domain.Inventory{}, fail(span, domain.Persistence("update inventory", err))
	}

	span.SetAttributes(
		attribute.Int64("warehouse.id", row.WarehouseID),
		attribute.Int("inventory.quantity", quantity),
	)
	l.logger.WithFields(log.Fields{
		"book_id":      row.BookID,
		"warehouse_id": row.WarehouseID,
		"from":         row.Quantity,
		"to":           quantity,
	}).Debug("inventory row updated")

	row.Quantity = quantity
	return row, nil
}

func (l *Ledger) startSpan(ctx context.Context, name string, bookID int64, amount int) (context.Context, trace.Span) {
	return l.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("book.id", bookID),
		attribute.Int("inventory.amount", amount),
	))
}

func uniqueSorted(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	slices.Sort(out)
	return slices.Compact(out)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
