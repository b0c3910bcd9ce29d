package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Book описывает позицию каталога. Цена читается только при наполнении корзины.
type Book struct {
	ID       int64
	ISBN     string
	Title    string
	Price    decimal.Decimal
	Currency string
}

// Warehouse описывает склад, на котором хранятся остатки.
type Warehouse struct {
	ID   int64
	Code string
	Name string
}

// Inventory хранит остаток одной книги на одном складе.
// Меняется только через ledger под блокировкой строки.
type Inventory struct {
	ID            int64
	WarehouseID   int64
	WarehouseCode string
	BookID        int64
	Quantity      int
	UpdatedAt     time.Time
}
