package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := store.Outbox()

	stored1, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "ORD-1",
		EventType:     domain.EventOrderCheckedOut,
		Payload:       []byte(`{"order_number":"ORD-1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored1.ID)

	fixedID := uuid.NewString()
	stored2, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            fixedID,
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "ORD-2",
		EventType:     domain.EventOrderStatusChanged,
		Payload:       []byte(`{"order_number":"ORD-2"}`),
	})
	require.NoError(t, err)
	require.Equal(t, fixedID, stored2.ID)

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, stored1.ID, pending[0].ID)
	require.JSONEq(t, `{"order_number":"ORD-1"}`, string(pending[0].Payload))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, stored1.ID))
	require.NoError(t, repo.MarkFailed(ctx, stored2.ID))

	after, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, after)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.IsZero())
}

func TestOutboxRepository_PostgresMissingRows(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	missing := uuid.NewString()

	require.ErrorIs(t, store.Outbox().MarkSent(ctx, missing), domain.ErrOutboxPublish)
	require.ErrorIs(t, store.Outbox().MarkFailed(ctx, missing), domain.ErrOutboxPublish)
}

func TestOutboxRepository_PostgresStatsOldestPending(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()
	repo := store.Outbox()
	base := time.Now().UTC().Add(-time.Hour).Round(time.Microsecond)

	first, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "ORD-OLD",
		EventType:     domain.EventOrderCheckedOut,
		Payload:       []byte(`{}`),
		CreatedAt:     base,
	})
	require.NoError(t, err)
	_, err = repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "ORD-NEW",
		EventType:     domain.EventOrderCheckedOut,
		Payload:       []byte(`{}`),
		CreatedAt:     base.Add(time.Minute),
	})
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.PendingCount)
	require.True(t, stats.OldestPendingAt.Equal(base))

	require.NoError(t, repo.MarkSent(ctx, first.ID))
	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	require.True(t, stats.OldestPendingAt.Equal(base.Add(time.Minute)))
}
