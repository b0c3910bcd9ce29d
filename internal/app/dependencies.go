package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/bookstore/internal/storage/redis"
)

// runtimeDependencies — хранилище и сопутствующие компоненты, выбранные конфигурацией.
type runtimeDependencies struct {
	storage         domain.Storage
	idempotencyRepo domain.IdempotencyRepository
	// Хранилище ключей само удаляет просроченные записи (Redis TTL).
	idempotencyExpires bool
	storageChecker     healthcheck.Checker
	redisChecker       healthcheck.Checker
	closeFn            func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return deps, nil
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(
			fmt.Errorf("ping redis %s: %w", addr, err),
			client.Close(),
			deps.close(),
		)
	}

	repo := redisstore.NewIdempotencyRepository(client)
	deps.idempotencyRepo = repo
	deps.idempotencyExpires = true
	deps.redisChecker = healthcheck.NewPingChecker("redis", repo.Ping)

	storageClose := deps.closeFn
	deps.closeFn = func() error {
		var storageErr error
		if storageClose != nil {
			storageErr = storageClose()
		}
		return errors.Join(client.Close(), storageErr)
	}

	logger.WithField("addr", addr).Info("idempotency keys are stored in redis")
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			storage:         store,
			idempotencyRepo: memory.NewIdempotencyRepository(),
			storageChecker:  healthcheck.NewPingChecker("storage", store.Ping),
			closeFn:         store.Close,
		}, nil

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, errors.New("postgres dsn is required for postgres storage driver")
		}

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, errors.Join(fmt.Errorf("apply postgres migrations: %w", err), store.Close())
			}
			logger.Info("postgres migrations applied")
		}

		logger.Info("using postgres storage")
		return &runtimeDependencies{
			storage:         store,
			idempotencyRepo: postgres.NewIdempotencyRepository(store),
			storageChecker:  healthcheck.NewPingChecker("storage", store.Ping),
			closeFn:         store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}
