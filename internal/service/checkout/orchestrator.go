package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
	"github.com/vladislavdragonenkov/bookstore/internal/service/audit"
	"github.com/vladislavdragonenkov/bookstore/internal/service/inventory"
)

const (
	tracerName = "github.com/vladislavdragonenkov/bookstore/internal/service/checkout"

	// DefaultListLimit ограничивает выдачу заказов клиента, если лимит не задан.
	DefaultListLimit = 50

	// Сколько раз повторить оформление при коллизии сгенерированного номера.
	generatedNumberAttempts = 3
)

// CheckoutRequest — запрос на оформление корзины.
type CheckoutRequest struct {
	CartID int64
	// OrderNumber задаётся явно или генерируется.
	OrderNumber string
	ActorID     *string
}

// TransitionRequest — запрос на смену статуса заказа.
type TransitionRequest struct {
	OrderNumber string
	Target      domain.OrderStatus
	ActorID     *string
}

// DeleteRequest — запрос на удаление заказа.
type DeleteRequest struct {
	OrderNumber string
	ActorID     *string
}

// Orchestrator оформляет корзины в заказы и ведёт их по жизненному циклу.
// Каждая операция выполняется в одной транзакции хранилища.
type Orchestrator struct {
	storage  domain.Storage
	ledger   *inventory.Ledger
	recorder *audit.Recorder
	machine  *domain.StateMachine
	metrics  *metrics.CheckoutMetrics
	tracer   trace.Tracer
	logger   *log.Entry
	now      func() time.Time
	numbers  NumberGenerator
	timeout  time.Duration
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics включает prometheus-метрики оформления.
func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer задаёт tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithStateMachine задаёт последовательность статусов.
func WithStateMachine(machine *domain.StateMachine) Option {
	return func(o *Orchestrator) {
		if machine != nil {
			o.machine = machine
		}
	}
}

// WithNumberGenerator подменяет генератор номеров заказов.
func WithNumberGenerator(gen NumberGenerator) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.numbers = gen
		}
	}
}

// WithTimeout ограничивает длительность одной транзакции, включая ожидание блокировок.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = timeout
	}
}

// WithLedger задаёт ledger остатков.
func WithLedger(ledger *inventory.Ledger) Option {
	return func(o *Orchestrator) {
		if ledger != nil {
			o.ledger = ledger
		}
	}
}

// WithRecorder задаёт журнал аудита.
func WithRecorder(recorder *audit.Recorder) Option {
	return func(o *Orchestrator) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// NewOrchestrator создаёт оркестратор поверх хранилища.
func NewOrchestrator(storage domain.Storage, options ...Option) (*Orchestrator, error) {
	if storage == nil {
		return nil, errors.New("checkout: storage is required")
	}

	o := &Orchestrator{
		storage: storage,
		machine: domain.MustStateMachine(domain.DefaultStatusSequence),
		tracer:  otel.Tracer(tracerName),
		logger:  log.WithField("component", "checkout"),
		now:     func() time.Time { return time.Now().UTC() },
		numbers: DefaultNumberGenerator,
	}
	for _, option := range options {
		option(o)
	}
	if o.ledger == nil {
		o.ledger = inventory.NewLedger(
			inventory.WithLogger(o.logger.WithField("layer", "ledger")),
			inventory.WithTracer(o.tracer),
		)
	}
	if o.recorder == nil {
		o.recorder = audit.NewRecorder(o.logger.WithField("layer", "audit"))
	}
	return o, nil
}

// StateMachine возвращает используемую машину состояний.
func (o *Orchestrator) StateMachine() *domain.StateMachine {
	return o.machine
}

// Checkout превращает активную корзину в оплаченный заказ.
// Любая ошибка откатывает транзакцию целиком: остатки, заказ, корзина, аудит и outbox не меняются.
func (o *Orchestrator) Checkout(ctx context.Context, req CheckoutRequest) (domain.Order, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
	}

	ctx, span := o.tracer.Start(ctx, "checkout", trace.WithAttributes(attribute.Int64("cart.id", req.CartID)))
	defer span.End()

	logger := o.logger.WithField("cart_id", req.CartID)

	order, units, err := o.checkoutWithRetry(ctx, req)
	if err != nil {
		kind := domain.KindOf(err)
		if o.metrics != nil {
			o.metrics.RecordCheckoutFailed(string(kind), time.Since(start))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.WithError(err).WithField("kind", kind).Warn("checkout rolled back")
		return domain.Order{}, err
	}

	if o.metrics != nil {
		o.metrics.RecordCheckoutSucceeded(units, time.Since(start))
	}
	span.SetAttributes(
		attribute.String("order.number", order.Number),
		attribute.String("order.total", order.TotalAmount.StringFixed(2)),
	)
	logger.WithFields(log.Fields{
		"order_number": order.Number,
		"order_id":     order.ID,
		"total":        order.TotalAmount.StringFixed(2),
		"lines":        len(order.Lines),
	}).Info("order checked out")
	return order, nil
}

func (o *Orchestrator) checkoutWithRetry(ctx context.Context, req CheckoutRequest) (domain.Order, int, error) {
	attempts := 1
	if strings.TrimSpace(req.OrderNumber) == "" {
		attempts = generatedNumberAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		order, units, err := o.checkoutOnce(ctx, req)
		if err == nil {
			return order, units, nil
		}
		if !errors.Is(err, domain.ErrOrderNumberTaken) {
			return domain.Order{}, 0, err
		}
		lastErr = err
		o.logger.WithError(err).WithField("attempt", attempt+1).Debug("generated order number collided")
	}
	return domain.Order{}, 0, lastErr
}

func (o *Orchestrator) checkoutOnce(ctx context.Context, req CheckoutRequest) (domain.Order, int, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	var (
		order domain.Order
		units int
	)
	err := o.storage.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		cart, err := tx.Carts().Get(ctx, req.CartID)
		if err != nil {
			return err
		}
		if !cart.Active {
			return domain.ErrCartInactive
		}
		if len(cart.Items) == 0 {
			return domain.ErrEmptyCart
		}

		now := o.now()
		number := strings.TrimSpace(req.OrderNumber)
		if number == "" {
			number = o.numbers(now)
		}
		lockedAt := now
		order = domain.Order{
			ID:         uuid.NewString(),
			Number:     number,
			CustomerID: cart.CustomerID,
			Status:     o.machine.Initial(),
			Currency:   domain.DefaultCurrency,
			PlacedAt:   now,
			LockedAt:   &lockedAt,
			Lines:      make([]domain.OrderLine, 0, len(cart.Items)),
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		bookIDs := make([]int64, 0, len(cart.Items))
		for _, item := range cart.Items {
			bookIDs = append(bookIDs, item.BookID)
		}
		if err := o.ledger.LockBooks(ctx, tx.Inventory(), bookIDs); err != nil {
			return err
		}

		total := decimal.Zero
		units = 0
		for _, item := range cart.Items {
			row, err := o.ledger.AllocateAny(ctx, tx.Inventory(), item.BookID, item.Quantity)
			if err != nil {
				return err
			}
			line := domain.OrderLine{
				ID:          uuid.NewString(),
				OrderID:     order.ID,
				BookID:      item.BookID,
				WarehouseID: row.WarehouseID,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			}
			order.Lines = append(order.Lines, line)
			total = total.Add(line.Subtotal())
			units += item.Quantity
		}
		order.TotalAmount = total

		if err := o.machine.Transition(&order, domain.OrderStatusPaid, now); err != nil {
			return err
		}
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return domain.Persistence("create order", err)
		}
		if err := tx.Carts().Deactivate(ctx, cart.ID); err != nil {
			return err
		}
		if _, err := o.recorder.Record(ctx, tx.Audit(), domain.AuditActionCheckout,
			fmt.Sprintf("Order %s created", order.Number), &order.ID, req.ActorID); err != nil {
			return err
		}
		return o.enqueue(ctx, tx, domain.EventOrderCheckedOut, newOrderEvent(order, req.ActorID, now))
	})
	if err != nil {
		return domain.Order{}, 0, err
	}
	return order, units, nil
}

// TransitionOrder переводит заказ в статус target. Отмена оплаченного или
// собранного заказа возвращает остатки на склады, указанные в позициях.
func (o *Orchestrator) TransitionOrder(ctx context.Context, req TransitionRequest) (domain.Order, error) {
	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		return domain.Order{}, domain.InvalidArgument("order number is required")
	}
	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(string(req.Target))))

	ctx, span := o.tracer.Start(ctx, "order.transition", trace.WithAttributes(
		attribute.String("order.number", number),
		attribute.String("order.target_status", string(target)),
	))
	defer span.End()

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	var (
		order domain.Order
		from  domain.OrderStatus
	)
	err := o.storage.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		order, err = tx.Orders().LockByNumber(ctx, number)
		if err != nil {
			return err
		}
		from = order.Status

		now := o.now()
		if err := o.machine.Transition(&order, target, now); err != nil {
			return err
		}
		if target == domain.OrderStatusCancelled && holdsStock(from) {
			bookIDs := make([]int64, 0, len(order.Lines))
			for _, line := range order.Lines {
				bookIDs = append(bookIDs, line.BookID)
			}
			if err := o.ledger.LockBooks(ctx, tx.Inventory(), bookIDs); err != nil {
				return err
			}
			for _, line := range order.Lines {
				if _, err := o.ledger.Restock(ctx, tx.Inventory(), line.WarehouseID, line.BookID, line.Quantity); err != nil {
					return err
				}
			}
		}

		if err := tx.Orders().Save(ctx, order); err != nil {
			return domain.Persistence("save order", err)
		}
		order.Version++

		if _, err := o.recorder.Record(ctx, tx.Audit(), domain.AuditActionUpdate,
			fmt.Sprintf("Order %s status %s -> %s", order.Number, from, order.Status), &order.ID, req.ActorID); err != nil {
			return err
		}

		event := newOrderEvent(order, req.ActorID, now)
		event.PreviousStatus = string(from)
		return o.enqueue(ctx, tx, domain.EventOrderStatusChanged, event)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.WithError(err).WithFields(log.Fields{
			"order_number": number,
			"target":       target,
		}).Warn("order transition rolled back")
		return domain.Order{}, err
	}

	if o.metrics != nil {
		o.metrics.RecordTransition(string(order.Status))
	}
	o.logger.WithFields(log.Fields{
		"order_number": order.Number,
		"from":         from,
		"to":           order.Status,
	}).Info("order status changed")
	return order, nil
}

// DeleteOrder удаляет заказ. Запись аудита сохраняется без ссылки на заказ.
func (o *Orchestrator) DeleteOrder(ctx context.Context, req DeleteRequest) error {
	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		return domain.InvalidArgument("order number is required")
	}

	ctx, span := o.tracer.Start(ctx, "order.delete", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	ctx, cancel := o.withTimeout(ctx)
	defer cancel()

	err := o.storage.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().LockByNumber(ctx, number)
		if err != nil {
			return err
		}
		if err := tx.Orders().Delete(ctx, order.ID); err != nil {
			return domain.Persistence("delete order", err)
		}
		if _, err := o.recorder.Record(ctx, tx.Audit(), domain.AuditActionDelete,
			fmt.Sprintf("Order %s deleted", order.Number), nil, req.ActorID); err != nil {
			return err
		}
		event := OrderEvent{OrderID: order.ID, OrderNumber: order.Number, CustomerID: order.CustomerID, OccurredAt: o.now()}
		if req.ActorID != nil {
			event.ActorID = *req.ActorID
		}
		return o.enqueue(ctx, tx, domain.EventOrderDeleted, event)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	o.logger.WithField("order_number", number).Info("order deleted")
	return nil
}

// GetOrder возвращает заказ по номеру.
func (o *Orchestrator) GetOrder(ctx context.Context, number string) (domain.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Order{}, domain.InvalidArgument("order number is required")
	}
	order, err := o.storage.Orders().GetByNumber(ctx, number)
	if err != nil {
		return domain.Order{}, domain.Persistence("get order", err)
	}
	return order, nil
}

// ListCustomerOrders возвращает заказы клиента, новые первыми.
func (o *Orchestrator) ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.InvalidArgument("customer_id is required")
	}
	if limit < 0 {
		return nil, domain.InvalidArgument("limit must be non-negative, got %d", limit)
	}
	if limit == 0 {
		limit = DefaultListLimit
	}
	orders, err := o.storage.Orders().ListByCustomer(ctx, customerID, limit)
	if err != nil {
		return nil, domain.Persistence("list orders", err)
	}
	return orders, nil
}

// ListAuditLog возвращает журнал аудита, новые записи первыми.
func (o *Orchestrator) ListAuditLog(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	return o.recorder.List(ctx, o.storage.Audit(), filter)
}

func (o *Orchestrator) enqueue(ctx context.Context, tx domain.Tx, eventType string, event OrderEvent) error {
	msg, err := outboxMessage(eventType, event)
	if err != nil {
		return err
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return domain.Persistence("enqueue "+eventType, err)
	}
	return nil
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.timeout)
}

// holdsStock сообщает, удерживает ли заказ в статусе status списанные остатки.
func holdsStock(status domain.OrderStatus) bool {
	return status == domain.OrderStatusPaid || status == domain.OrderStatusAllocated
}
