package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TxManager выполняет fn в одной атомарной транзакции.
// Любая ошибка fn откатывает все изменения и снимает блокировки.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx открывает доступ к репозиториям, привязанным к текущей транзакции.
type Tx interface {
	Inventory() InventoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	Audit() AuditRepository
	Outbox() OutboxWriter
}

// Storage — корень хранилища: транзакции плюс чтение вне транзакций.
type Storage interface {
	TxManager
	Catalog() CatalogRepository
	Carts() CartRepository
	Orders() OrderRepository
	Audit() AuditRepository
	Outbox() OutboxRepository
	Ping(ctx context.Context) error
	Close() error
}

// InventoryRepository — доступ к складским строкам. Блокировки держатся до конца транзакции.
type InventoryRepository interface {
	// LockByBook блокирует все строки книги в порядке id и возвращает их текущее состояние.
	LockByBook(ctx context.Context, bookID int64) ([]Inventory, error)
	// LockByBooks блокирует строки нескольких книг в едином порядке возрастания id.
	LockByBooks(ctx context.Context, bookIDs []int64) ([]Inventory, error)
	// Lock блокирует строку (warehouse, book). Если строки нет, возвращает NoInventory.
	Lock(ctx context.Context, warehouseID, bookID int64) (Inventory, error)
	// UpdateQuantity записывает новое количество для ранее заблокированной строки.
	UpdateQuantity(ctx context.Context, inventoryID int64, quantity int) error
}

// CartRepository описывает доступ к корзинам.
type CartRepository interface {
	Create(ctx context.Context, customerID string) (Cart, error)
	AddItem(ctx context.Context, cartID, bookID int64, quantity int, unitPrice decimal.Decimal) (CartItem, error)
	// Get возвращает корзину с позициями в порядке добавления.
	Get(ctx context.Context, id int64) (Cart, error)
	// Deactivate атомарно снимает флаг active; повторный вызов возвращает ErrCartInactive.
	Deactivate(ctx context.Context, id int64) error
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями.
	Create(ctx context.Context, order Order) error
	// GetByNumber возвращает заказ по номеру или ErrOrderNotFound.
	GetByNumber(ctx context.Context, number string) (Order, error)
	// LockByNumber блокирует строку заказа до конца транзакции.
	LockByNumber(ctx context.Context, number string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Save применяет изменения статуса с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// Delete удаляет заказ и его позиции; ссылки журнала обнуляются.
	Delete(ctx context.Context, id string) error
}

// AuditRepository хранит журнал аудита (только добавление).
type AuditRepository interface {
	Append(ctx context.Context, entry AuditLogEntry) (AuditLogEntry, error)
	List(ctx context.Context, filter AuditFilter) ([]AuditLogEntry, error)
}

// CatalogRepository — справочники и остатки для служебных утилит и тестов.
type CatalogRepository interface {
	SaveBook(ctx context.Context, book Book) (Book, error)
	GetBook(ctx context.Context, id int64) (Book, error)
	SaveWarehouse(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	// SetStock создаёт или перезаписывает остаток (warehouse, book).
	SetStock(ctx context.Context, warehouseID, bookID int64, quantity int) (Inventory, error)
	// ListStock возвращает зафиксированные остатки книги в порядке id.
	ListStock(ctx context.Context, bookID int64) ([]Inventory, error)
}
