package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает этап жизненного цикла заказа.
type OrderStatus string

const (
	// Оболочка заказа создана, позиции ещё не зафиксированы.
	OrderStatusPending OrderStatus = "PENDING"
	// Заказ оформлен, остатки списаны.
	OrderStatusPaid OrderStatus = "PAID"
	// Заказ передан складу на сборку.
	OrderStatusAllocated OrderStatus = "ALLOCATED"
	// Заказ отгружен перевозчику.
	OrderStatusShipped OrderStatus = "SHIPPED"
	// Заказ вручён покупателю.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// Заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// Заказ возвращён покупателем.
	OrderStatusReturned OrderStatus = "RETURNED"
)

// DefaultCurrency используется, если валюта не указана в каталоге.
const DefaultCurrency = "USD"

// OrderLine — позиция заказа с ценой, зафиксированной на момент оформления.
type OrderLine struct {
	ID          string
	OrderID     string
	BookID      int64
	WarehouseID int64
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Subtotal возвращает quantity * unit_price.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID          string
	Number      string
	CustomerID  string
	Status      OrderStatus
	TotalAmount decimal.Decimal
	Currency    string
	PlacedAt    time.Time
	// Момент, когда корзина была зафиксирована в заказ.
	LockedAt  *time.Time
	Lines     []OrderLine
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LinesTotal пересчитывает сумму по позициям.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Clone возвращает копию заказа, не разделяющую слайс позиций.
func (o Order) Clone() Order {
	dst := o
	dst.Lines = append([]OrderLine(nil), o.Lines...)
	if o.LockedAt != nil {
		lockedAt := *o.LockedAt
		dst.LockedAt = &lockedAt
	}
	return dst
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.Number == "" {
		errs = append(errs, InvalidArgument("order number is required"))
	}
	if o.CustomerID == "" {
		errs = append(errs, InvalidArgument("customer_id is required"))
	}
	if o.TotalAmount.IsNegative() {
		errs = append(errs, InvalidArgument("total amount must be non-negative"))
	}

	seen := make(map[int64]struct{}, len(o.Lines))
	for _, line := range o.Lines {
		if line.Quantity <= 0 {
			errs = append(errs, InvalidArgument("line quantity for book %d must be positive", line.BookID))
		}
		if line.UnitPrice.IsNegative() {
			errs = append(errs, InvalidArgument("line price for book %d must be non-negative", line.BookID))
		}
		if _, dup := seen[line.BookID]; dup {
			errs = append(errs, InvalidArgument("duplicate line for book %d", line.BookID))
		}
		seen[line.BookID] = struct{}{}
	}
	if len(o.Lines) > 0 && !o.LinesTotal().Equal(o.TotalAmount) {
		errs = append(errs, InvalidArgument("order total does not match lines sum"))
	}

	return errs
}
