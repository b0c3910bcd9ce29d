package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.CheckoutTimeout <= 0 {
		t.Error("expected CheckoutTimeout to be > 0")
	}
	if cfg.IdempotencyTTL != domain.DefaultIdempotencyTTL {
		t.Errorf("expected IdempotencyTTL %s, got %s", domain.DefaultIdempotencyTTL, cfg.IdempotencyTTL)
	}
	if cfg.KafkaTopic == "" || cfg.KafkaDLQTopic == "" {
		t.Error("expected default kafka topics")
	}

	require.NoError(t, cfg.Validate())
}

func TestConfig_Comparison(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg2 := DefaultConfig()

	if cfg1 != cfg2 {
		t.Error("two DefaultConfig instances should be equal")
	}

	cfg2.OrderStatusSequence = "PENDING,CANCELLED"
	if cfg1 == cfg2 {
		t.Error("modified config should not be equal to original")
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty grpc address",
			mutate:  func(c *Config) { c.GRPCAddr = " " },
			wantErr: "grpc address is required",
		},
		{
			name:    "unsupported driver",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: "unsupported storage driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: "postgres dsn is required",
		},
		{
			name:    "negative checkout timeout",
			mutate:  func(c *Config) { c.CheckoutTimeout = -time.Second },
			wantErr: "checkout timeout",
		},
		{
			name:    "sequence without cancelled",
			mutate:  func(c *Config) { c.OrderStatusSequence = "PENDING,PAID" },
			wantErr: "order status sequence",
		},
		{
			name:    "duplicate status",
			mutate:  func(c *Config) { c.OrderStatusSequence = "PENDING,PENDING,CANCELLED" },
			wantErr: "appears twice",
		},
		{
			name:    "zero outbox batch",
			mutate:  func(c *Config) { c.OutboxBatchSize = 0 },
			wantErr: "outbox batch size",
		},
		{
			name:    "zero idempotency ttl",
			mutate:  func(c *Config) { c.IdempotencyTTL = 0 },
			wantErr: "idempotency ttl",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = ""
	cfg.OutboxMaxAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "metrics address"))
	require.True(t, strings.Contains(err.Error(), "outbox max attempts"))
}

func TestConfig_StatusSequence(t *testing.T) {
	cfg := DefaultConfig()

	sequence, err := cfg.statusSequence()
	require.NoError(t, err)
	require.Equal(t, domain.DefaultStatusSequence, sequence)

	cfg.OrderStatusSequence = " pending, shipped ,cancelled "
	sequence, err = cfg.statusSequence()
	require.NoError(t, err)
	require.Equal(t, []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusShipped,
		domain.OrderStatusCancelled,
	}, sequence)
}

func TestSplitList(t *testing.T) {
	require.Equal(t, []string{"broker1:9092", "broker2:9092"}, splitList("broker1:9092, ,broker2:9092 ,"))
	require.Empty(t, splitList(""))
}
