package postgres

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bookstore/internal/domain"
)

func TestIdempotencyRepository_ClaimAndStoreResponse(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Microsecond)

	created, err := repo.CreateProcessing(ctx, "u1:checkout", "hash-a", ttl)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, created.Status)

	existing, err := repo.CreateProcessing(ctx, "u1:checkout", "hash-a", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	assert.Equal(t, domain.IdempotencyStatusProcessing, existing.Status)
	assert.Zero(t, existing.HTTPStatus, "NULL http_status scans as zero")

	_, err = repo.CreateProcessing(ctx, "u1:checkout", "hash-b", ttl)
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, "u1:checkout", []byte(`{"order_id":"o-1"}`), http.StatusCreated))

	got, err := repo.Get(ctx, "u1:checkout")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, got.Status)
	assert.Equal(t, http.StatusCreated, got.HTTPStatus)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(got.ResponseBody))
	assert.True(t, got.TTLAt.Equal(ttl), "ttl mismatch: expected %s, got %s", ttl, got.TTLAt)

	assert.ErrorIs(t, repo.MarkFailed(ctx, "u2:missing", nil, http.StatusBadGateway), domain.ErrIdempotencyKeyNotFound)
}

func TestIdempotencyRepository_ExpiredKeyIsReclaimed(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "reuse", "old-hash", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	require.NoError(t, repo.MarkDone(ctx, "reuse", []byte(`{}`), http.StatusCreated))

	created, err := repo.CreateProcessing(ctx, "reuse", "new-hash", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "new-hash", created.RequestHash)

	got, err := repo.Get(ctx, "reuse")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, got.Status)
	assert.Empty(t, got.ResponseBody)
}

func TestIdempotencyRepository_DeleteExpiredInBatches(t *testing.T) {
	repo := NewIdempotencyRepository(migratedStore(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for key, ttl := range map[string]time.Duration{
		"expired-1": -5 * time.Minute,
		"expired-2": -4 * time.Minute,
		"expired-3": -3 * time.Minute,
		"active":    time.Hour,
	} {
		_, err := repo.CreateProcessing(ctx, key, "h", now.Add(ttl))
		require.NoError(t, err)
	}

	removed, err := repo.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = repo.Get(ctx, "expired-3")
	assert.NoError(t, err, "oldest records go first")

	removed, err = repo.DeleteExpired(ctx, now, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "active")
	assert.NoError(t, err)
}
