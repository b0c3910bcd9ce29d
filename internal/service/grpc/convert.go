package grpcsvc

import (
	bookstorev1 "github.com/vladislavdragonenkov/bookstore/api/bookstore/v1"
	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func toAPIOrder(order domain.Order) *bookstorev1.Order {
	lines := make([]bookstorev1.OrderLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, bookstorev1.OrderLine{
			ID:          line.ID,
			BookID:      line.BookID,
			WarehouseID: line.WarehouseID,
			Quantity:    int32(line.Quantity), //nolint:gosec // количество в позиции ограничено складскими остатками.
			UnitPrice:   line.UnitPrice.StringFixed(2),
			Subtotal:    line.Subtotal().StringFixed(2),
		})
	}

	return &bookstorev1.Order{
		ID:          order.ID,
		Number:      order.Number,
		CustomerID:  order.CustomerID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount.StringFixed(2),
		Currency:    order.Currency,
		Lines:       lines,
		Version:     order.Version,
		PlacedAt:    order.PlacedAt,
		LockedAt:    order.LockedAt,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

func toAPIAuditEntry(entry domain.AuditLogEntry) *bookstorev1.AuditLogEntry {
	return &bookstorev1.AuditLogEntry{
		ID:          entry.ID,
		Action:      string(entry.Action),
		Description: entry.Description,
		OrderID:     entry.OrderID,
		ActorID:     entry.ActorID,
		CreatedAt:   entry.CreatedAt,
	}
}
