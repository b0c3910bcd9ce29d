package checkout

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

// OrderEvent — полезная нагрузка событий заказа в outbox.
type OrderEvent struct {
	OrderID        string           `json:"order_id"`
	OrderNumber    string           `json:"order_number"`
	CustomerID     string           `json:"customer_id,omitempty"`
	Status         string           `json:"status,omitempty"`
	PreviousStatus string           `json:"previous_status,omitempty"`
	TotalAmount    string           `json:"total_amount,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	ActorID        string           `json:"actor_id,omitempty"`
	Lines          []OrderEventLine `json:"lines,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// OrderEventLine описывает позицию заказа в событии.
type OrderEventLine struct {
	BookID      int64  `json:"book_id"`
	WarehouseID int64  `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

func newOrderEvent(order domain.Order, actorID *string, occurredAt time.Time) OrderEvent {
	event := OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		CustomerID:  order.CustomerID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount.StringFixed(2),
		Currency:    order.Currency,
		OccurredAt:  occurredAt,
	}
	if actorID != nil {
		event.ActorID = *actorID
	}
	for _, line := range order.Lines {
		event.Lines = append(event.Lines, OrderEventLine{
			BookID:      line.BookID,
			WarehouseID: line.WarehouseID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice.StringFixed(2),
		})
	}
	return event
}

func outboxMessage(eventType string, event OrderEvent) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.OutboxMessage{}, domain.Persistence("marshal "+eventType, err)
	}
	return domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   event.OrderID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     event.OccurredAt,
	}, nil
}
