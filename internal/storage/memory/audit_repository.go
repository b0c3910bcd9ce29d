package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type txAudit struct {
	tx *memTx
}

func (r *txAudit) Append(_ context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if !entry.Action.Valid() {
		return domain.AuditLogEntry{}, domain.InvalidArgument("unknown audit action %q", entry.Action)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.tx.store.now()
	}
	r.tx.audit = append(r.tx.audit, cloneAuditEntry(entry))
	return entry, nil
}

func (r *txAudit) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	s := r.tx.store
	s.mu.RLock()
	entries := make([]domain.AuditLogEntry, 0, len(s.audit)+len(r.tx.audit))
	for _, entry := range s.audit {
		entries = append(entries, cloneAuditEntry(entry))
	}
	s.mu.RUnlock()
	for _, entry := range r.tx.audit {
		entries = append(entries, cloneAuditEntry(entry))
	}
	return filterAudit(entries, filter), nil
}

type autocommitAudit struct {
	store *Store
}

func (r *autocommitAudit) Append(ctx context.Context, entry domain.AuditLogEntry) (saved domain.AuditLogEntry, err error) {
	err = r.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		saved, err = tx.Audit().Append(ctx, entry)
		return err
	})
	return saved, err
}

func (r *autocommitAudit) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	s := r.store
	s.mu.RLock()
	entries := make([]domain.AuditLogEntry, 0, len(s.audit))
	for _, entry := range s.audit {
		entries = append(entries, cloneAuditEntry(entry))
	}
	s.mu.RUnlock()
	return filterAudit(entries, filter), nil
}

// filterAudit возвращает записи от новых к старым; entries приходят в порядке добавления.
func filterAudit(entries []domain.AuditLogEntry, filter domain.AuditFilter) []domain.AuditLogEntry {
	result := make([]domain.AuditLogEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if filter.OrderID != "" && (entry.OrderID == nil || *entry.OrderID != filter.OrderID) {
			continue
		}
		result = append(result, entry)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

func cloneAuditEntry(src domain.AuditLogEntry) domain.AuditLogEntry {
	dst := src
	if src.OrderID != nil {
		orderID := *src.OrderID
		dst.OrderID = &orderID
	}
	if src.ActorID != nil {
		actorID := *src.ActorID
		dst.ActorID = &actorID
	}
	return dst
}

var (
	_ domain.AuditRepository = (*txAudit)(nil)
	_ domain.AuditRepository = (*autocommitAudit)(nil)
)
