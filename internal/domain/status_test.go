package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestStateMachine_CanTransition(t *testing.T) {
	sm := domain.MustStateMachine(domain.DefaultStatusSequence)

	tests := []struct {
		current domain.OrderStatus
		target  domain.OrderStatus
		want    bool
	}{
		{domain.OrderStatusPending, domain.OrderStatusPaid, true},
		{domain.OrderStatusPaid, domain.OrderStatusPaid, true},
		{domain.OrderStatusPaid, domain.OrderStatusDelivered, true},
		{domain.OrderStatusShipped, domain.OrderStatusPending, false},
		{domain.OrderStatusShipped, domain.OrderStatusCancelled, true},
		{domain.OrderStatusDelivered, domain.OrderStatusCancelled, true},
		{domain.OrderStatusReturned, domain.OrderStatusCancelled, true},
		{domain.OrderStatusDelivered, domain.OrderStatusReturned, true},
		{domain.OrderStatusCancelled, domain.OrderStatusReturned, true},
		{domain.OrderStatusReturned, domain.OrderStatusDelivered, false},
		{domain.OrderStatusCancelled, domain.OrderStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.current)+"->"+string(tt.target), func(t *testing.T) {
			got, err := sm.CanTransition(tt.current, tt.target)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStateMachine_UnknownStatus(t *testing.T) {
	sm := domain.MustStateMachine(domain.DefaultStatusSequence)

	_, err := sm.CanTransition(domain.OrderStatusPending, "BOGUS")
	require.ErrorIs(t, err, domain.ErrUnknownStatus)

	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	require.Equal(t, domain.OrderStatus("BOGUS"), derr.Status)

	_, err = sm.CanTransition("BOGUS", domain.OrderStatusPaid)
	require.ErrorIs(t, err, domain.ErrUnknownStatus)
}

func TestStateMachine_Transition(t *testing.T) {
	sm := domain.MustStateMachine(domain.DefaultStatusSequence)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	order := domain.Order{Status: domain.OrderStatusShipped}
	err := sm.Transition(&order, domain.OrderStatusPending, now)
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
	require.Equal(t, domain.OrderStatusShipped, order.Status)
	require.True(t, order.UpdatedAt.IsZero())

	require.NoError(t, sm.Transition(&order, domain.OrderStatusCancelled, now))
	require.Equal(t, domain.OrderStatusCancelled, order.Status)
	require.Equal(t, now, order.UpdatedAt)

	require.ErrorIs(t, sm.Transition(nil, domain.OrderStatusPaid, now), domain.ErrInvalidArgument)
}

func TestStateMachine_InjectedSequence(t *testing.T) {
	sequence, err := domain.ParseStatusSequence(" pending, paid ,shipped,CANCELLED ")
	require.NoError(t, err)
	require.Equal(t, []domain.OrderStatus{"PENDING", "PAID", "SHIPPED", "CANCELLED"}, sequence)

	sm, err := domain.NewStateMachine(sequence)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, sm.Initial())

	_, err = sm.CanTransition(domain.OrderStatusPaid, domain.OrderStatusAllocated)
	require.ErrorIs(t, err, domain.ErrUnknownStatus)

	ok, err := sm.CanTransition(domain.OrderStatusShipped, domain.OrderStatusPaid)
	require.NoError(t, err)
	require.False(t, ok)

	// Машина не зависит от последующих изменений исходного слайса.
	sequence[0] = "MUTATED"
	require.True(t, sm.Known(domain.OrderStatusPending))
	require.False(t, sm.Known("MUTATED"))
}

func TestNewStateMachine_Validation(t *testing.T) {
	cases := map[string][]domain.OrderStatus{
		"empty":             nil,
		"duplicate":         {domain.OrderStatusPending, domain.OrderStatusPending, domain.OrderStatusCancelled},
		"without cancelled": {domain.OrderStatusPending, domain.OrderStatusPaid},
		"blank status":      {domain.OrderStatusPending, "", domain.OrderStatusCancelled},
	}
	for name, sequence := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.NewStateMachine(sequence)
			require.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}

	_, err := domain.ParseStatusSequence(" , ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
