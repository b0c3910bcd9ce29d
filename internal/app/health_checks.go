package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/bookstore/internal/health"
)

// outboxBacklogChecker помечает сервис degraded, когда backlog outbox превышает порог.
type outboxBacklogChecker struct {
	repo       domain.OutboxRepository
	maxPending int
}

func newOutboxBacklogChecker(repo domain.OutboxRepository, maxPending int) *outboxBacklogChecker {
	return &outboxBacklogChecker{repo: repo, maxPending: maxPending}
}

func (c *outboxBacklogChecker) Check(ctx context.Context) healthcheck.Check {
	start := time.Now()
	check := healthcheck.Check{Name: "outbox", Status: healthcheck.StatusHealthy}

	stats, err := c.repo.Stats(ctx)
	check.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		check.Status = healthcheck.StatusUnhealthy
		check.Message = err.Error()
		return check
	}

	check.Message = fmt.Sprintf("%d pending", stats.PendingCount)
	if c.maxPending > 0 && stats.PendingCount > c.maxPending {
		check.Status = healthcheck.StatusDegraded
		check.Message = fmt.Sprintf("%d pending exceeds limit %d", stats.PendingCount, c.maxPending)
	}
	return check
}
