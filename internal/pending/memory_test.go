package pending

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(journeyID string, ttl time.Duration) *ResumeContext {
	now := time.Now()
	return &ResumeContext{
		JourneyID: journeyID,
		Version:   1,
		Action: &PendingAction{
			Kind:      ActionResumeCheckout,
			TargetURL: "/support/ignis-careers",
			Amount:    25,
			CreatedAt: now,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rc := newContext("journey-1", time.Hour)
	require.NoError(t, store.Put(ctx, rc))

	got, err := store.Get(ctx, "journey-1")
	require.NoError(t, err)
	assert.Equal(t, "journey-1", got.JourneyID)
	require.NotNil(t, got.Action)
	assert.Equal(t, ActionResumeCheckout, got.Action.Kind)
	assert.Equal(t, "/support/ignis-careers", got.Action.TargetURL)
	assert.Equal(t, 25, got.Action.Amount)
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := newContext("journey-1", time.Hour)
	require.NoError(t, store.Put(ctx, first))

	second := newContext("journey-1", time.Hour)
	second.Action.TargetURL = "/support/allika-goods"
	second.Version = 2
	require.NoError(t, store.Put(ctx, second))

	got, err := store.Get(ctx, "journey-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "/support/allika-goods", got.Action.TargetURL)
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rc := newContext("journey-1", time.Hour)
	require.NoError(t, store.Put(ctx, rc))

	// Mutating the caller's copy must not affect stored state
	rc.Action.TargetURL = "/somewhere-else"

	got, err := store.Get(ctx, "journey-1")
	require.NoError(t, err)
	assert.Equal(t, "/support/ignis-careers", got.Action.TargetURL)

	// Mutating one read copy must not affect another
	got.Action.TargetURL = "/mutated"
	again, err := store.Get(ctx, "journey-1")
	require.NoError(t, err)
	assert.Equal(t, "/support/ignis-careers", again.Action.TargetURL)
}

func TestMemoryStoreExpiredReadsAsAbsent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rc := newContext("journey-1", time.Hour)
	require.NoError(t, store.Put(ctx, rc))

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err := store.Get(ctx, "journey-1")
	assert.ErrorIs(t, err, ErrContextNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newContext("journey-1", time.Hour)))
	require.NoError(t, store.Delete(ctx, "journey-1"))

	_, err := store.Get(ctx, "journey-1")
	assert.ErrorIs(t, err, ErrContextNotFound)

	t.Run("deleting missing context is not an error", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-existed"))
	})
}

func TestMemoryStoreDeleteExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newContext("fresh", time.Hour)))
	require.NoError(t, store.Put(ctx, newContext("stale-1", time.Minute)))
	require.NoError(t, store.Put(ctx, newContext("stale-2", time.Minute)))

	store.now = func() time.Time { return time.Now().Add(30 * time.Minute) }

	count, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	total, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestCleanupManagerSweeps(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newContext("stale", -time.Minute)))

	cm := NewCleanupManager(store, 10*time.Millisecond)
	cm.Start(ctx)
	defer cm.Stop()

	assert.Eventually(t, func() bool {
		count, err := store.Count(ctx)
		return err == nil && count == 0
	}, time.Second, 10*time.Millisecond)
}
