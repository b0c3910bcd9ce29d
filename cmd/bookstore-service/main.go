package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/app"
)

const (
	envLogLevel                    = "BOOKSTORE_LOG_LEVEL"
	envGRPCAddr                    = "BOOKSTORE_GRPC_ADDR"
	envMetricsAddr                 = "BOOKSTORE_METRICS_ADDR"
	envStorageDriver               = "BOOKSTORE_STORAGE_DRIVER"
	envPostgresDSN                 = "BOOKSTORE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "BOOKSTORE_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "BOOKSTORE_REDIS_ADDR"
	envKafkaBrokers                = "BOOKSTORE_KAFKA_BROKERS"
	envKafkaTopic                  = "BOOKSTORE_KAFKA_TOPIC"
	envKafkaDLQTopic               = "BOOKSTORE_KAFKA_DLQ_TOPIC"
	envOTLPEndpoint                = "BOOKSTORE_OTLP_ENDPOINT"
	envCheckoutTimeout             = "BOOKSTORE_CHECKOUT_TIMEOUT"
	envOrderStatusSequence         = "BOOKSTORE_ORDER_STATUS_SEQUENCE"
	envOutboxPollInterval          = "BOOKSTORE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "BOOKSTORE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "BOOKSTORE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "BOOKSTORE_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "BOOKSTORE_OUTBOX_MAX_PENDING"
	envIdempotencyTTL              = "BOOKSTORE_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "BOOKSTORE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "BOOKSTORE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
)

// envLookup повторяет сигнатуру os.LookupEnv, чтобы подменять окружение в тестах.
type envLookup func(key string) (string, bool)

// warning описывает значение переменной окружения, отброшенное в пользу значения по умолчанию.
type warning struct {
	key   string
	value string
	err   error
}

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	raw, ok := lookup(envLogLevel)
	if !ok || strings.TrimSpace(raw) == "" {
		return
	}
	level, err := log.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		log.WithError(err).WithField("env", envLogLevel).Warn("invalid log level, using info")
		return
	}
	log.SetLevel(level)
}

// readConfigFromEnv собирает конфигурацию из окружения поверх app.DefaultConfig.
// Некорректные значения не прерывают запуск: остаётся значение по умолчанию и возвращается предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []warning) {
	cfg := app.DefaultConfig()
	var warnings []warning

	str := func(key string, dst *string, normalize func(string) string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = normalize(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, warning{key: key, value: v, err: err})
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int, valid func(int) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, msg)
		if err != nil {
			warnings = append(warnings, warning{key: key, value: v, err: err})
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, msg string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, msg)
		if err != nil {
			warnings = append(warnings, warning{key: key, value: v, err: err})
			return
		}
		*dst = parsed
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	str(envGRPCAddr, &cfg.GRPCAddr, strings.TrimSpace)
	str(envMetricsAddr, &cfg.MetricsAddr, strings.TrimSpace)
	str(envStorageDriver, &cfg.StorageDriver, func(v string) string { return strings.ToLower(strings.TrimSpace(v)) })
	str(envPostgresDSN, &cfg.PostgresDSN, strings.TrimSpace)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envRedisAddr, &cfg.RedisAddr, strings.TrimSpace)
	str(envKafkaBrokers, &cfg.KafkaBrokers, strings.TrimSpace)
	str(envKafkaTopic, &cfg.KafkaTopic, strings.TrimSpace)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic, strings.TrimSpace)
	str(envOTLPEndpoint, &cfg.OTLPEndpoint, strings.TrimSpace)
	duration(envCheckoutTimeout, &cfg.CheckoutTimeout, nonNegativeDuration, "must be >= 0")
	str(envOrderStatusSequence, &cfg.OrderStatusSequence, func(v string) string { return strings.ToUpper(strings.TrimSpace(v)) })

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDuration, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, msg string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, msg)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, msg string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, msg)
	}
	return value, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.WithError(w.err).WithFields(log.Fields{
			"env":   w.key,
			"value": w.value,
		}).Warn("ignoring invalid environment value, using default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("starting bookstore checkout service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("service exited with error")
	}

	log.Info("bookstore checkout service stopped")
}
