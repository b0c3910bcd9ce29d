// Package bookstorev1 описывает gRPC-контракт сервиса оформления заказов.
// Сообщения передаются JSON-кодеком (см. codec.go), поэтому это обычные Go-структуры;
// их protobuf-описание для reflection собрано в descriptor.go.
package bookstorev1

import "time"

// Ключи метаданных запроса и трейлеров ответа.
const (
	// Идентификатор пользователя, от имени которого выполняется операция.
	MetadataActorID = "x-actor-id"
	// Ключ идемпотентности мутирующих вызовов.
	MetadataIdempotencyKey = "idempotency-key"
	// Вид доменной ошибки (EMPTY_CART, INSUFFICIENT_STOCK, ...).
	TrailerErrorKind = "x-error-kind"
)

// Order — заказ в ответах сервиса. Денежные суммы передаются строками с двумя знаками.
type Order struct {
	ID          string      `json:"id"`
	Number      string      `json:"order_number"`
	CustomerID  string      `json:"customer_id"`
	Status      string      `json:"status"`
	TotalAmount string      `json:"total_amount"`
	Currency    string      `json:"currency"`
	Lines       []OrderLine `json:"lines"`
	Version     int64       `json:"version"`
	PlacedAt    time.Time   `json:"placed_at"`
	LockedAt    *time.Time  `json:"locked_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// OrderLine — позиция заказа.
type OrderLine struct {
	ID          string `json:"id"`
	BookID      int64  `json:"book_id"`
	WarehouseID int64  `json:"warehouse_id"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

// AuditLogEntry — запись журнала аудита.
type AuditLogEntry struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	OrderID     *string   `json:"order_id,omitempty"`
	ActorID     *string   `json:"actor_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CheckoutRequest struct {
	CartID int64 `json:"cart_id"`
	// OrderNumber необязателен: пустой номер генерирует сервис.
	OrderNumber string `json:"order_number,omitempty"`
}

type CheckoutResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderNumber string `json:"order_number"`
}

type GetOrderResponse struct {
	Order *Order `json:"order"`
}

type ListCustomerOrdersRequest struct {
	CustomerID string `json:"customer_id"`
	Limit      int32  `json:"limit,omitempty"`
}

type ListCustomerOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type TransitionOrderRequest struct {
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
}

type TransitionOrderResponse struct {
	Order *Order `json:"order"`
}

type DeleteOrderRequest struct {
	OrderNumber string `json:"order_number"`
}

type DeleteOrderResponse struct {
	OrderNumber string `json:"order_number"`
}

type ListAuditLogRequest struct {
	OrderID string `json:"order_id,omitempty"`
	Limit   int32  `json:"limit,omitempty"`
}

type ListAuditLogResponse struct {
	Entries []*AuditLogEntry `json:"entries"`
}
