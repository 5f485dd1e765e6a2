package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestOutboxRepository_PendingLifecycle(t *testing.T) {
	store := migratedStore(t)
	repo := NewOutboxRepository(store)
	ctx := context.Background()

	generated, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"order-1"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.ID, "id is generated when empty")

	fixed, err := repo.Enqueue(ctx, domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: "order",
		AggregateID:   "order-2",
		EventType:     domain.EventOrderPaid,
		Payload:       []byte(`{"order_id":"order-2"}`),
	})
	require.NoError(t, err)

	_, err = repo.Enqueue(ctx, fixed)
	assert.Error(t, err, "duplicate id is rejected")

	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, []string{generated.ID, fixed.ID}, []string{pending[0].ID, pending[1].ID})
	assert.JSONEq(t, `{"order_id":"order-2"}`, string(pending[1].Payload))

	limited, err := repo.PullPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(ctx, generated.ID))
	require.NoError(t, repo.MarkFailed(ctx, fixed.ID))

	pending, err = repo.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var attempts int
	require.NoError(t, store.DB().QueryRowContext(ctx,
		`SELECT attempt_count FROM outbox_messages WHERE id = $1`, fixed.ID).Scan(&attempts))
	assert.Equal(t, 1, attempts)
}

func TestOutboxRepository_UnknownID(t *testing.T) {
	repo := NewOutboxRepository(migratedStore(t))
	ctx := context.Background()

	assert.ErrorIs(t, repo.MarkSent(ctx, "missing-outbox"), domain.ErrOutboxPublish)
	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing-outbox"), domain.ErrOutboxPublish)
}
