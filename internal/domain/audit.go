package domain

import "time"

// AuditAction — закрытый набор действий журнала аудита.
type AuditAction string

const (
	AuditActionCheckout AuditAction = "checkout"
	AuditActionUpdate   AuditAction = "update"
	AuditActionDelete   AuditAction = "delete"
)

// Valid проверяет, что действие относится к поддерживаемым значениям.
func (a AuditAction) Valid() bool {
	switch a {
	case AuditActionCheckout, AuditActionUpdate, AuditActionDelete:
		return true
	default:
		return false
	}
}

// AuditLogEntry хранит неизменяемую запись журнала.
// OrderID хранится как слабая ссылка: при удалении заказа обнуляется, запись остаётся.
type AuditLogEntry struct {
	ID          string
	Action      AuditAction
	Description string
	OrderID     *string
	ActorID     *string
	CreatedAt   time.Time
}

// AuditFilter ограничивает выборку журнала.
type AuditFilter struct {
	OrderID string
	Limit   int
}
