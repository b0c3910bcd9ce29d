package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultStatusSequence — порядок статусов, используемый по умолчанию.
// Переход разрешён вперёд или на месте, а также в CANCELLED из любого статуса.
var DefaultStatusSequence = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusAllocated,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
}

// StateMachine проверяет и применяет переходы статусов заказа.
// Последовательность задаётся при создании и дальше не меняется.
type StateMachine struct {
	sequence []OrderStatus
	index    map[OrderStatus]int
}

// NewStateMachine строит машину состояний по упорядоченной последовательности.
func NewStateMachine(sequence []OrderStatus) (*StateMachine, error) {
	if len(sequence) == 0 {
		return nil, InvalidArgument("status sequence must not be empty")
	}

	index := make(map[OrderStatus]int, len(sequence))
	for i, status := range sequence {
		if status == "" {
			return nil, InvalidArgument("status sequence contains empty status at position %d", i)
		}
		if _, dup := index[status]; dup {
			return nil, InvalidArgument("status %s appears twice in sequence", status)
		}
		index[status] = i
	}
	if _, ok := index[OrderStatusCancelled]; !ok {
		return nil, InvalidArgument("status sequence must contain %s", OrderStatusCancelled)
	}

	return &StateMachine{
		sequence: append([]OrderStatus(nil), sequence...),
		index:    index,
	}, nil
}

// MustStateMachine паникует там, где NewStateMachine вернул бы ошибку.
func MustStateMachine(sequence []OrderStatus) *StateMachine {
	sm, err := NewStateMachine(sequence)
	if err != nil {
		panic(fmt.Sprintf("invalid status sequence: %v", err))
	}
	return sm
}

// ParseStatusSequence разбирает список вида "PENDING,PAID,...".
func ParseStatusSequence(raw string) ([]OrderStatus, error) {
	parts := strings.Split(raw, ",")
	result := make([]OrderStatus, 0, len(parts))
	for _, part := range parts {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		result = append(result, OrderStatus(part))
	}
	if len(result) == 0 {
		return nil, InvalidArgument("status sequence %q is empty", raw)
	}
	return result, nil
}

// Sequence возвращает копию последовательности.
func (m *StateMachine) Sequence() []OrderStatus {
	return append([]OrderStatus(nil), m.sequence...)
}

// Initial возвращает первый статус последовательности.
func (m *StateMachine) Initial() OrderStatus {
	return m.sequence[0]
}

// Known сообщает, входит ли статус в последовательность.
func (m *StateMachine) Known(status OrderStatus) bool {
	_, ok := m.index[status]
	return ok
}

// CanTransition проверяет, разрешён ли переход current -> target.
func (m *StateMachine) CanTransition(current, target OrderStatus) (bool, error) {
	targetIdx, ok := m.index[target]
	if !ok {
		return false, UnknownStatus(target)
	}
	currentIdx, ok := m.index[current]
	if !ok {
		return false, UnknownStatus(current)
	}
	if target == OrderStatusCancelled {
		return true, nil
	}
	return targetIdx >= currentIdx, nil
}

// Transition меняет статус заказа, если переход разрешён. Остатки не затрагиваются.
func (m *StateMachine) Transition(order *Order, target OrderStatus, now time.Time) error {
	if order == nil {
		return InvalidArgument("order is required")
	}
	ok, err := m.CanTransition(order.Status, target)
	if err != nil {
		return err
	}
	if !ok {
		return IllegalTransition(order.Status, target)
	}
	order.Status = target
	order.UpdatedAt = now
	return nil
}
