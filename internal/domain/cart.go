package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart описывает корзину покупателя. После оформления становится неактивной навсегда.
type Cart struct {
	ID         int64
	CustomerID string
	Active     bool
	Items      []CartItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CartItem хранит количество и цену книги на момент добавления в корзину.
type CartItem struct {
	ID        int64
	CartID    int64
	BookID    int64
	Quantity  int
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// Subtotal возвращает quantity * unit_price.
func (i CartItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total возвращает сумму корзины.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}
