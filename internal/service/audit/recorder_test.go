package audit_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
	"github.com/vladislavdragonenkov/bookstore/internal/service/audit"
	"github.com/vladislavdragonenkov/bookstore/internal/storage/memory"
)

type failingRepo struct {
	err error
}

func (f failingRepo) Append(context.Context, domain.AuditLogEntry) (domain.AuditLogEntry, error) {
	return domain.AuditLogEntry{}, f.err
}

func (f failingRepo) List(context.Context, domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	return nil, f.err
}

func ptr(s string) *string { return &s }

func TestRecorder_RecordAndList(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	recorder := audit.NewRecorder(nil)

	entry, err := recorder.Record(ctx, store.Audit(), domain.AuditActionCheckout, "Order ORD-1 created", ptr("order-1"), ptr("  "))
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	require.NotNil(t, entry.OrderID)
	require.Equal(t, "order-1", *entry.OrderID)
	require.Nil(t, entry.ActorID, "blank actor is stored as absent")

	_, err = recorder.Record(ctx, store.Audit(), domain.AuditActionUpdate, "Order ORD-2 status PAID -> SHIPPED", ptr("order-2"), ptr("clerk"))
	require.NoError(t, err)

	entries, err := recorder.List(ctx, store.Audit(), domain.AuditFilter{OrderID: " order-1 "})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.AuditActionCheckout, entries[0].Action)

	all, err := recorder.List(ctx, store.Audit(), domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = recorder.List(ctx, store.Audit(), domain.AuditFilter{Limit: -1})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRecorder_RejectsUnknownAction(t *testing.T) {
	store := memory.NewStore()
	recorder := audit.NewRecorder(nil)

	_, err := recorder.Record(context.Background(), store.Audit(), domain.AuditAction("purge"), "x", nil, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	entries, err := store.Audit().List(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRecorder_WrapsStorageFailure(t *testing.T) {
	boom := errors.New("disk full")
	recorder := audit.NewRecorder(nil)

	_, err := recorder.Record(context.Background(), failingRepo{err: boom}, domain.AuditActionDelete, "Order ORD-1 deleted", nil, nil)
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.ErrorIs(t, err, boom)

	_, err = recorder.List(context.Background(), failingRepo{err: boom}, domain.AuditFilter{})
	require.ErrorIs(t, err, domain.ErrPersistence)
}

func TestRecorder_EntryRollsBackWithTransaction(t *testing.T) {
	store := memory.NewStore()
	recorder := audit.NewRecorder(nil)

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if _, err := recorder.Record(ctx, tx.Audit(), domain.AuditActionCheckout, "Order ORD-9 created", nil, nil); err != nil {
			return err
		}
		return domain.ErrInsufficientStock
	})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	entries, err := store.Audit().List(context.Background(), domain.AuditFilter{})
	require.NoError(t, err)
	require.Empty(t, entries)
}
