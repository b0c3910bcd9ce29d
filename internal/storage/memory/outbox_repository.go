package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	updatedAt  time.Time
}

// outboxRepositoryInMemory хранит сообщения в порядке постановки в очередь.
type outboxRepositoryInMemory struct {
	mu      sync.RWMutex
	now     func() time.Time
	order   []string
	records map[string]*outboxRecord
}

func newOutboxRepository(now func() time.Time) *outboxRepositoryInMemory {
	return &outboxRepositoryInMemory{
		now:     now,
		records: make(map[string]*outboxRecord),
	}
}

// append фиксирует сообщение, пришедшее из закоммиченной транзакции.
func (r *outboxRepositoryInMemory) append(msg domain.OutboxMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[msg.ID]; exists {
		return
	}
	r.records[msg.ID] = &outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		updatedAt: msg.CreatedAt,
	}
	r.order = append(r.order, msg.ID)
}

// Enqueue сохраняет событие со статусом `pending` вне бизнес-транзакции.
func (r *outboxRepositoryInMemory) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	msg = prepareOutboxMessage(msg, r.now())
	r.append(msg)
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке FIFO.
func (r *outboxRepositoryInMemory) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	limit = domain.NormalizePullLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, limit)
	for _, id := range r.order {
		rec := r.records[id]
		if rec.status != outboxStatusPending {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *outboxRepositoryInMemory) Stats(context.Context) (domain.OutboxStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.OutboxStats
	for _, id := range r.order {
		rec := r.records[id]
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.msg.CreatedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.msg.CreatedAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepositoryInMemory) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepositoryInMemory) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxStatusFailed)
}

func (r *outboxRepositoryInMemory) mark(id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attemptCnt++
	record.updatedAt = r.now()
	return nil
}

type txOutbox struct {
	tx *memTx
}

func (w *txOutbox) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	msg = prepareOutboxMessage(msg, w.tx.store.now())
	w.tx.outbox = append(w.tx.outbox, msg)
	return msg, nil
}

func prepareOutboxMessage(msg domain.OutboxMessage, now time.Time) domain.OutboxMessage {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	return msg
}

var (
	_ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
	_ domain.OutboxWriter     = (*txOutbox)(nil)
)
