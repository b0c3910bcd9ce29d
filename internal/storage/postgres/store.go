package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

// dbtx покрывает общие методы *sql.DB и *sql.Tx.
// Репозитории работают через него и не знают, идёт ли транзакция.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует domain.Storage.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema применяет все up-миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в транзакции READ COMMITTED.
// Блокировки строк (SELECT ... FOR UPDATE) держатся до commit или rollback;
// ожидание прерывается отменой ctx.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return domain.Persistence("begin tx", errStoreNotInitialized)
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return persistence("begin tx", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			err = domain.Persistence("tx panic", fmt.Errorf("%v", r))
		}
	}()

	if err := fn(ctx, &pgTx{q: sqlTx, now: s.now}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return persistence("commit tx", err)
	}
	return nil
}

// Catalog возвращает справочники и остатки.
func (s *Store) Catalog() domain.CatalogRepository {
	return &catalogRepository{q: s.db, now: s.now}
}

// Carts возвращает корзины; каждая операция выполняется отдельным statement.
func (s *Store) Carts() domain.CartRepository {
	return &cartRepository{q: s.db, now: s.now}
}

// Orders возвращает заказы вне транзакции. LockByNumber здесь равносилен чтению.
func (s *Store) Orders() domain.OrderRepository {
	return &orderRepository{q: s.db, now: s.now, autocommit: s}
}

// Audit возвращает журнал аудита.
func (s *Store) Audit() domain.AuditRepository {
	return &auditRepository{q: s.db, now: s.now}
}

// Outbox возвращает outbox-репозиторий для воркера публикации.
func (s *Store) Outbox() domain.OutboxRepository {
	return &outboxRepository{q: s.db, now: s.now}
}

// pgTx привязывает репозитории к открытой *sql.Tx.
type pgTx struct {
	q   dbtx
	now func() time.Time
}

func (t *pgTx) Inventory() domain.InventoryRepository { return &inventoryRepository{q: t.q, now: t.now} }
func (t *pgTx) Carts() domain.CartRepository          { return &cartRepository{q: t.q, now: t.now} }
func (t *pgTx) Orders() domain.OrderRepository        { return &orderRepository{q: t.q, now: t.now} }
func (t *pgTx) Audit() domain.AuditRepository         { return &auditRepository{q: t.q, now: t.now} }
func (t *pgTx) Outbox() domain.OutboxWriter           { return &outboxRepository{q: t.q, now: t.now} }

var (
	_ domain.Storage = (*Store)(nil)
	_ domain.Tx      = (*pgTx)(nil)
)
