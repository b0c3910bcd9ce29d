package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) Stats(context.Context) (domain.OutboxStats, error) {
	return domain.OutboxStats{}, errors.New("stats unavailable")
}

func TestOutboxBacklogChecker(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Outbox()

	checker := newOutboxBacklogChecker(repo, 2)
	check := checker.Check(ctx)
	require.Equal(t, healthcheck.StatusHealthy, check.Status)
	require.Equal(t, "0 pending", check.Message)

	for i := 0; i < 3; i++ {
		_, err := repo.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   "ORD-1",
			EventType:     "OrderCheckedOut",
			Payload:       []byte(`{}`),
		})
		require.NoError(t, err)
	}

	check = checker.Check(ctx)
	require.Equal(t, healthcheck.StatusDegraded, check.Status)
	require.Contains(t, check.Message, "exceeds limit 2")
}

func TestOutboxBacklogChecker_StatsError(t *testing.T) {
	check := newOutboxBacklogChecker(failingOutbox{}, 10).Check(context.Background())
	require.Equal(t, healthcheck.StatusUnhealthy, check.Status)
	require.Equal(t, "stats unavailable", check.Message)
}
