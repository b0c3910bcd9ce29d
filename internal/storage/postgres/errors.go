package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// Коды ошибок PostgreSQL, на которые реагирует хранилище.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgQueryCanceled        = "57014"
)

const constraintOrderNumber = "orders_order_number_key"

var errStoreNotInitialized = errors.New("postgres store is not initialized")

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgForeignKeyViolation
}

// persistence заворачивает ошибку драйвера в ErrPersistence, дописывая причину
// для конфликтов блокировок, которые откатывают транзакцию целиком.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := pgError(err); ok {
		switch pgErr.Code {
		case pgDeadlockDetected:
			return domain.Persistence(op, fmt.Errorf("deadlock detected: %w: %w", domain.ErrTransient, err))
		case pgLockNotAvailable, pgQueryCanceled:
			return domain.Persistence(op, fmt.Errorf("lock wait aborted: %w: %w", domain.ErrTransient, err))
		case pgSerializationFailure:
			return domain.Persistence(op, fmt.Errorf("serialization failure: %w: %w", domain.ErrTransient, err))
		}
	}
	return domain.Persistence(op, err)
}
