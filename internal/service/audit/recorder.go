package audit

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// DefaultListLimit ограничивает выдачу журнала, если лимит не задан.
const DefaultListLimit = 100

// Recorder добавляет записи в журнал аудита внутри транзакции вызывающего кода.
type Recorder struct {
	logger *log.Entry
}

// NewRecorder создаёт Recorder.
func NewRecorder(logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "audit-recorder")
	}
	return &Recorder{logger: logger}
}

// Record пишет запись action. orderID и actorID необязательны.
// Ошибка хранилища возвращается как ErrPersistence и должна прервать транзакцию.
func (r *Recorder) Record(ctx context.Context, repo domain.AuditRepository, action domain.AuditAction, description string, orderID, actorID *string) (domain.AuditLogEntry, error) {
	if !action.Valid() {
		return domain.AuditLogEntry{}, domain.InvalidArgument("unknown audit action %q", action)
	}

	entry, err := repo.Append(ctx, domain.AuditLogEntry{
		Action:      action,
		Description: description,
		OrderID:     normalizeRef(orderID),
		ActorID:     normalizeRef(actorID),
	})
	if err != nil {
		return domain.AuditLogEntry{}, domain.Persistence("append audit entry", err)
	}

	r.logger.WithFields(log.Fields{
		"action":   entry.Action,
		"entry_id": entry.ID,
	}).Debug(description)
	return entry, nil
}

// List возвращает записи от новых к старым.
func (r *Recorder) List(ctx context.Context, repo domain.AuditRepository, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	if filter.Limit < 0 {
		return nil, domain.InvalidArgument("limit must be non-negative, got %d", filter.Limit)
	}
	if filter.Limit == 0 {
		filter.Limit = DefaultListLimit
	}
	filter.OrderID = strings.TrimSpace(filter.OrderID)

	entries, err := repo.List(ctx, filter)
	if err != nil {
		return nil, domain.Persistence("list audit log", err)
	}
	return entries, nil
}

func normalizeRef(ref *string) *string {
	if ref == nil {
		return nil
	}
	value := strings.TrimSpace(*ref)
	if value == "" {
		return nil
	}
	return &value
}
