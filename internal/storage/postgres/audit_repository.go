package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

type auditRepository struct {
	q   dbtx
	now func() time.Time
}

func (r *auditRepository) Append(ctx context.Context, entry domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	if !entry.Action.Valid() {
		return domain.AuditLogEntry{}, domain.InvalidArgument("unknown audit action %q", entry.Action)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, description, order_id, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, string(entry.Action), entry.Description, entry.OrderID, entry.ActorID, entry.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.AuditLogEntry{}, domain.ErrOrderNotFound
		}
		return domain.AuditLogEntry{}, persistence("append audit entry", err)
	}
	return entry, nil
}

// List возвращает записи от новых к старым.
func (r *auditRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		args = append(args, orderID)
		clauses = append(clauses, "order_id::text = $1")
	}

	query := `SELECT id, action, description, order_id, actor_id, created_at FROM audit_log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence("list audit log", err)
	}
	defer rows.Close()

	entries := make([]domain.AuditLogEntry, 0)
	for rows.Next() {
		var (
			entry   domain.AuditLogEntry
			action  string
			orderID sql.NullString
			actorID sql.NullString
		)
		if err := rows.Scan(&entry.ID, &action, &entry.Description, &orderID, &actorID, &entry.CreatedAt); err != nil {
			return nil, persistence("scan audit entry", err)
		}
		entry.Action = domain.AuditAction(action)
		entry.CreatedAt = entry.CreatedAt.UTC()
		if orderID.Valid {
			entry.OrderID = &orderID.String
		}
		if actorID.Valid {
			entry.ActorID = &actorID.String
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate audit log", err)
	}
	return entries, nil
}

var _ domain.AuditRepository = (*auditRepository)(nil)
