package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	bookstorev1 "github.com/vladislavdragonenkov/bookstore/api/bookstore/v1"
	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
	"github.com/vladislavdragonenkov/bookstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
	"github.com/vladislavdragonenkov/bookstore/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/bookstore/internal/service/grpc"
	"github.com/vladislavdragonenkov/bookstore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bookstore/internal/service/outbox"
	"github.com/vladislavdragonenkov/bookstore/internal/tracing"
	"github.com/vladislavdragonenkov/bookstore/internal/version"
)

const (
	serviceName       = "bookstore-service"
	shutdownTimeout   = 5 * time.Second
	workerStopTimeout = 5 * time.Second
)

// Run поднимает gRPC сервер оформления заказов, HTTP метрики и фоновые воркеры.
// Блокируется до отмены ctx; при штатной остановке возвращает ctx.Err().
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger.WithFields(version.Fields()).Info("starting bookstore service")

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version.Version(),
	}, logger.WithField("layer", "tracing"))
	if err != nil {
		logger.WithError(err).Warn("failed to set up tracing, continuing without export")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown with error")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	orchestrator, err := newOrchestrator(cfg, deps.storage, logger)
	if err != nil {
		return err
	}

	idemMetrics := metrics.NewIdempotencyMetrics()
	checkoutService := grpcsvc.NewCheckoutService(
		orchestrator,
		deps.idempotencyRepo,
		logger.WithField("layer", "grpc"),
		grpcsvc.WithIdempotencyTTL(cfg.IdempotencyTTL),
		grpcsvc.WithIdempotencyMetrics(idemMetrics),
	)

	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	bookstorev1.RegisterCheckoutServiceServer(grpcServer, checkoutService)
	grpcMetrics.InitializeMetrics(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(bookstorev1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	if deps.redisChecker != nil {
		healthHandler.RegisterOptionalChecker("redis", deps.redisChecker)
	}
	healthHandler.RegisterOptionalChecker("outbox", newOutboxBacklogChecker(deps.storage.Outbox(), cfg.OutboxMaxPending))

	// Kafka не обязательна: без неё события копятся в outbox.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafkaProducer(producer, logger)

	var (
		outboxCancel  context.CancelFunc
		outboxDone    <-chan struct{}
		cleanupCancel context.CancelFunc
		cleanupDone   <-chan struct{}
	)
	if producer != nil {
		worker := newOutboxWorker(cfg, deps.storage.Outbox(), producer, logger)
		outboxCancel, outboxDone = startWorker(ctx, worker.Run)
		logger.WithField("topic", cfg.KafkaTopic).Info("outbox worker started")
	}
	if !deps.idempotencyExpires {
		cleaner := idempotency.NewCleanupWorker(
			deps.idempotencyRepo,
			idempotency.WithLogger(logger.WithField("layer", "idempotency-cleanup")),
			idempotency.WithMetrics(idemMetrics),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		cleanupCancel, cleanupDone = startWorker(ctx, cleaner.Run)
	}
	defer func() {
		shutdownWorker("idempotency-cleanup", cleanupCancel, cleanupDone, logger)
		shutdownOutboxWorker(outboxCancel, outboxDone, logger)
	}()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC server listening on %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gRPC server")
		healthServer.Shutdown()
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func newOrchestrator(cfg Config, storage domain.Storage, logger *log.Entry) (*checkout.Orchestrator, error) {
	sequence, err := cfg.statusSequence()
	if err != nil {
		return nil, fmt.Errorf("order status sequence: %w", err)
	}
	machine, err := domain.NewStateMachine(sequence)
	if err != nil {
		return nil, fmt.Errorf("order status sequence: %w", err)
	}

	return checkout.NewOrchestrator(
		storage,
		checkout.WithLogger(logger.WithField("layer", "checkout")),
		checkout.WithMetrics(metrics.NewCheckoutMetrics()),
		checkout.WithStateMachine(machine),
		checkout.WithTimeout(cfg.CheckoutTimeout),
	)
}

func newOutboxWorker(cfg Config, repo domain.OutboxRepository, producer *kafka.Producer, logger *log.Entry) *outbox.Worker {
	return outbox.NewWorker(
		repo,
		kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		outbox.WithLogger(logger.WithField("layer", "outbox")),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}

// startWorker запускает run в отдельной горутине с собственным контекстом.
func startWorker(ctx context.Context, run func(ctx context.Context)) (context.CancelFunc, <-chan struct{}) {
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(workerCtx)
	}()
	return cancel, done
}

// shutdownOutboxWorker останавливает outbox worker и ждёт завершения текущего цикла.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	shutdownWorker("outbox", cancel, done, logger)
}

func shutdownWorker(name string, cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.WithField("worker", name).Info("worker stopped")
	case <-time.After(workerStopTimeout):
		logger.WithField("worker", name).Warn("worker did not stop in time")
	}
}

// startMetricsServer запускает HTTP-сервер с /metrics и health-эндпоинтами.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
