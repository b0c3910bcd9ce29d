package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/metrics"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

func enqueue(t *testing.T, repo domain.OutboxRepository, number string) domain.OutboxMessage {
	t.Helper()
	msg, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   number,
		EventType:     domain.EventOrderCheckedOut,
		Payload:       []byte(`{"order_number":"` + number + `"}`),
	})
	require.NoError(t, err)
	return msg
}

func newTestWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	base := []Option{
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(prometheus.NewRegistry())),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	}
	return NewWorker(repo, publisher, append(base, options...)...)
}

func TestWorker_ProcessOnce_MarkSent(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	first := enqueue(t, store.Outbox(), "ORD-1")
	second := enqueue(t, store.Outbox(), "ORD-2")
	publisher := &stubPublisher{}

	sent := newTestWorker(store.Outbox(), publisher).ProcessOnce(context.Background())
	require.Equal(t, 2, sent)
	require.Equal(t, []string{first.ID, second.ID}, publisher.publishedIDs())

	pending, err := store.Outbox().PullPending(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestWorker_ProcessOnce_MarkFailedAndDLQAfterRetries(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	msg := enqueue(t, store.Outbox(), "ORD-3")
	publisher := &stubPublisher{err: errors.New("broker unavailable")}
	dlq := &stubPublisher{}
	reg := prometheus.NewRegistry()

	worker := newTestWorker(store.Outbox(), publisher,
		WithDLQPublisher(dlq),
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)),
	)
	require.Zero(t, worker.ProcessOnce(context.Background()))

	require.Equal(t, 3, publisher.calls())
	require.Equal(t, 1, dlq.calls())

	envelope := map[string]any{}
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &envelope))
	require.Equal(t, msg.ID, envelope["outbox_id"])
	require.Equal(t, "ORD-3", envelope["aggregate_id"])
	require.Contains(t, envelope["publish_error"], "broker unavailable")

	stats, err := store.Outbox().Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	expected := `
# HELP bookstore_outbox_publish_attempts_total Total number of outbox publish attempts grouped by result.
# TYPE bookstore_outbox_publish_attempts_total counter
bookstore_outbox_publish_attempts_total{result="failed"} 1
bookstore_outbox_publish_attempts_total{result="retry_error"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bookstore_outbox_publish_attempts_total"))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	enqueue(t, store.Outbox(), "ORD-4")
	publisher := &stubPublisher{
		sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil},
	}

	require.Equal(t, 1, newTestWorker(store.Outbox(), publisher).ProcessOnce(context.Background()))
	require.Equal(t, 3, publisher.calls())
}

func TestWorker_BacklogMetrics(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	enqueue(t, store.Outbox(), "ORD-5")
	reg := prometheus.NewRegistry()
	publisher := &stubPublisher{err: errors.New("down")}

	worker := newTestWorker(store.Outbox(), publisher,
		WithMetrics(metrics.NewOutboxMetricsWithRegisterer(reg)),
		WithMaxAttempts(1),
	)
	worker.refreshBacklogMetrics(context.Background())

	expected := `
# HELP bookstore_outbox_pending_records Current number of pending records in transactional outbox.
# TYPE bookstore_outbox_pending_records gauge
bookstore_outbox_pending_records 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bookstore_outbox_pending_records"))
}

func TestWorker_RetryBackoff(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(memory.NewStore().Outbox(), &stubPublisher{}, WithRetryBaseDelay(10*time.Millisecond))
	require.Equal(t, 10*time.Millisecond, worker.retryBackoff(1))
	require.Equal(t, 20*time.Millisecond, worker.retryBackoff(2))
	require.Equal(t, 40*time.Millisecond, worker.retryBackoff(3))
}

func TestWorker_PublishStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	enqueue(t, store.Outbox(), "ORD-6")
	publisher := &stubPublisher{err: errors.New("down")}
	worker := newTestWorker(store.Outbox(), publisher, WithRetryBaseDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan int, 1)
	go func() { done <- worker.ProcessOnce(ctx) }()

	select {
	case sent := <-done:
		require.Zero(t, sent)
	case <-time.After(time.Second):
		t.Fatal("publish retry did not stop on context cancel")
	}
	require.Equal(t, 1, publisher.calls())
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := newTestWorker(memory.NewStore().Outbox(), &stubPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	published      []domain.OutboxMessage
	callCount      int
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	err := s.err
	if len(s.sequenceErrors) > 0 {
		err = s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
	}
	if err == nil {
		s.published = append(s.published, msg)
	}
	return err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

func (s *stubPublisher) publishedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.published))
	for _, msg := range s.published {
		ids = append(ids, msg.ID)
	}
	return ids
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)
