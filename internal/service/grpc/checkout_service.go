package grpcsvc

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	bookstorev1 "github.com/vladislavdragonenkov/bookstore/api/bookstore/v1"
	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
	"github.com/vladislavdragonenkov/bookstore/internal/service/checkout"
)

// Orchestrator перечисляет операции оформления и жизненного цикла заказа, которые обслуживает сервис.
type Orchestrator interface {
	Checkout(ctx context.Context, req checkout.CheckoutRequest) (domain.Order, error)
	TransitionOrder(ctx context.Context, req checkout.TransitionRequest) (domain.Order, error)
	DeleteOrder(ctx context.Context, req checkout.DeleteRequest) error
	GetOrder(ctx context.Context, number string) (domain.Order, error)
	ListCustomerOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
	ListAuditLog(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error)
}

// CheckoutService реализует gRPC API поверх оркестратора оформления.
type CheckoutService struct {
	bookstorev1.UnimplementedCheckoutServiceServer

	orchestrator Orchestrator
	idemRepo     domain.IdempotencyRepository
	idemMetrics  *metrics.IdempotencyMetrics
	idemTTL      time.Duration
	logger       *log.Entry
	now          func() time.Time
}

// Option настраивает CheckoutService.
type Option func(*CheckoutService)

// WithIdempotencyTTL задаёт срок хранения ответов по idempotency-key.
func WithIdempotencyTTL(ttl time.Duration) Option {
	return func(s *CheckoutService) {
		if ttl > 0 {
			s.idemTTL = ttl
		}
	}
}

// WithIdempotencyMetrics включает счётчик повторно отданных ответов.
func WithIdempotencyMetrics(m *metrics.IdempotencyMetrics) Option {
	return func(s *CheckoutService) {
		s.idemMetrics = m
	}
}

// WithClock подменяет источник времени (для TTL ключей).
func WithClock(now func() time.Time) Option {
	return func(s *CheckoutService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCheckoutService конструирует сервис. idemRepo может быть nil: тогда ключи идемпотентности игнорируются.
func NewCheckoutService(
	orchestrator Orchestrator,
	idemRepo domain.IdempotencyRepository,
	logger *log.Entry,
	options ...Option,
) *CheckoutService {
	if logger == nil {
		logger = log.New().WithField("component", "checkout-service")
	}
	s := &CheckoutService{
		orchestrator: orchestrator,
		idemRepo:     idemRepo,
		idemTTL:      domain.DefaultIdempotencyTTL,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Checkout оформляет корзину в заказ.
func (s *CheckoutService) Checkout(ctx context.Context, req *bookstorev1.CheckoutRequest) (*bookstorev1.CheckoutResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(
		s,
		ctx,
		bookstorev1.CheckoutService_Checkout_FullMethodName,
		req,
		func() *bookstorev1.CheckoutResponse { return &bookstorev1.CheckoutResponse{} },
		func(ctx context.Context) (*bookstorev1.CheckoutResponse, error) {
			if req.CartID <= 0 {
				return nil, s.toStatus(ctx, domain.InvalidArgument("cart_id must be positive, got %d", req.CartID))
			}
			order, err := s.orchestrator.Checkout(ctx, checkout.CheckoutRequest{
				CartID:      req.CartID,
				OrderNumber: req.OrderNumber,
				ActorID:     readActorID(ctx),
			})
			if err != nil {
				return nil, s.toStatus(ctx, err)
			}
			return &bookstorev1.CheckoutResponse{Order: toAPIOrder(order)}, nil
		},
	)
}

// TransitionOrder меняет статус заказа.
func (s *CheckoutService) TransitionOrder(ctx context.Context, req *bookstorev1.TransitionOrderRequest) (*bookstorev1.TransitionOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(
		s,
		ctx,
		bookstorev1.CheckoutService_TransitionOrder_FullMethodName,
		req,
		func() *bookstorev1.TransitionOrderResponse { return &bookstorev1.TransitionOrderResponse{} },
		func(ctx context.Context) (*bookstorev1.TransitionOrderResponse, error) {
			order, err := s.orchestrator.TransitionOrder(ctx, checkout.TransitionRequest{
				OrderNumber: req.OrderNumber,
				Target:      domain.OrderStatus(req.Status),
				ActorID:     readActorID(ctx),
			})
			if err != nil {
				return nil, s.toStatus(ctx, err)
			}
			return &bookstorev1.TransitionOrderResponse{Order: toAPIOrder(order)}, nil
		},
	)
}

// DeleteOrder удаляет заказ.
func (s *CheckoutService) DeleteOrder(ctx context.Context, req *bookstorev1.DeleteOrderRequest) (*bookstorev1.DeleteOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(
		s,
		ctx,
		bookstorev1.CheckoutService_DeleteOrder_FullMethodName,
		req,
		func() *bookstorev1.DeleteOrderResponse { return &bookstorev1.DeleteOrderResponse{} },
		func(ctx context.Context) (*bookstorev1.DeleteOrderResponse, error) {
			number := strings.TrimSpace(req.OrderNumber)
			if err := s.orchestrator.DeleteOrder(ctx, checkout.DeleteRequest{
				OrderNumber: number,
				ActorID:     readActorID(ctx),
			}); err != nil {
				return nil, s.toStatus(ctx, err)
			}
			return &bookstorev1.DeleteOrderResponse{OrderNumber: number}, nil
		},
	)
}

// GetOrder возвращает заказ по номеру.
func (s *CheckoutService) GetOrder(ctx context.Context, req *bookstorev1.GetOrderRequest) (*bookstorev1.GetOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.orchestrator.GetOrder(ctx, req.OrderNumber)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &bookstorev1.GetOrderResponse{Order: toAPIOrder(order)}, nil
}

// ListCustomerOrders возвращает заказы клиента, новые первыми.
func (s *CheckoutService) ListCustomerOrders(ctx context.Context, req *bookstorev1.ListCustomerOrdersRequest) (*bookstorev1.ListCustomerOrdersResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	orders, err := s.orchestrator.ListCustomerOrders(ctx, req.CustomerID, int(req.Limit))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &bookstorev1.ListCustomerOrdersResponse{Orders: make([]*bookstorev1.Order, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toAPIOrder(order))
	}
	return resp, nil
}

// ListAuditLog возвращает журнал аудита, при необходимости по одному заказу.
func (s *CheckoutService) ListAuditLog(ctx context.Context, req *bookstorev1.ListAuditLogRequest) (*bookstorev1.ListAuditLogResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	entries, err := s.orchestrator.ListAuditLog(ctx, domain.AuditFilter{
		OrderID: strings.TrimSpace(req.OrderID),
		Limit:   int(req.Limit),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &bookstorev1.ListAuditLogResponse{Entries: make([]*bookstorev1.AuditLogEntry, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, toAPIAuditEntry(entry))
	}
	return resp, nil
}

func readActorID(ctx context.Context) *string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	values := md.Get(bookstorev1.MetadataActorID)
	if len(values) == 0 {
		return nil
	}
	actor := strings.TrimSpace(values[0])
	if actor == "" {
		return nil
	}
	return &actor
}
