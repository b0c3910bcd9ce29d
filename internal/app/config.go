package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const (
	// Хранилище в памяти процесса (dev, тесты).
	StorageDriverMemory = "memory"
	// PostgreSQL через pgx.
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса оформления заказов.
// Все поля сравнимы: конфигурацию можно сравнивать через ==.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	// RedisAddr включает хранение ключей идемпотентности в Redis.
	RedisAddr           string

	// Список брокеров через запятую. Пустой отключает публикацию outbox.
	KafkaBrokers  string
	KafkaTopic    string
	KafkaDLQTopic string

	OTLPEndpoint string

	CheckoutTimeout     time.Duration
	// Порядок статусов через запятую, пустой означает стандартный.
	OrderStatusSequence string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// Порог backlog для health-проверки, 0 отключает проверку порога.
	OutboxMaxPending   int

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int
}

// DefaultConfig возвращает конфигурацию для локального запуска.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		KafkaTopic:                  "bookstore.order.events",
		KafkaDLQTopic:               "bookstore.order.dlq",
		CheckoutTimeout:             10 * time.Second,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            200 * time.Millisecond,
		OutboxMaxPending:            1000,
		IdempotencyTTL:              domain.DefaultIdempotencyTTL,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.GRPCAddr) == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		errs = append(errs, errors.New("metrics address is required"))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.CheckoutTimeout < 0 {
		errs = append(errs, fmt.Errorf("checkout timeout must be >= 0, got %s", c.CheckoutTimeout))
	}
	if _, err := c.statusSequence(); err != nil {
		errs = append(errs, fmt.Errorf("order status sequence: %w", err))
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval must be > 0"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be > 0"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox retry delay must be >= 0"))
	}
	if c.OutboxMaxPending < 0 {
		errs = append(errs, errors.New("outbox max pending must be >= 0"))
	}

	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be > 0"))
	}
	if c.IdempotencyCleanupInterval <= 0 {
		errs = append(errs, errors.New("idempotency cleanup interval must be > 0"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup batch size must be > 0"))
	}

	return errors.Join(errs...)
}

// statusSequence разбирает OrderStatusSequence; пустая строка даёт стандартный порядок.
func (c Config) statusSequence() ([]domain.OrderStatus, error) {
	if strings.TrimSpace(c.OrderStatusSequence) == "" {
		return domain.DefaultStatusSequence, nil
	}
	sequence, err := domain.ParseStatusSequence(c.OrderStatusSequence)
	if err != nil {
		return nil, err
	}
	if _, err := domain.NewStateMachine(sequence); err != nil {
		return nil, err
	}
	return sequence, nil
}

// splitList разбирает список через запятую, отбрасывая пустые элементы.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
