package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dopaya1/dopaya-app-sub001/internal/impact"
	"github.com/Dopaya1/dopaya-app-sub001/internal/pending"
)

type fakeAccounts struct {
	mu          sync.Mutex
	account     *impact.Account
	err         error
	invalidated []string
}

func (f *fakeAccounts) GetAccount(_ context.Context, _, _ string) (*impact.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	copied := *f.account
	return &copied, nil
}

func (f *fakeAccounts) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
}

type fakeGranter struct {
	calls atomic.Int32
	block chan struct{}
	err   error
}

func (f *fakeGranter) GrantWelcomeBonus(_ context.Context, _ string) error {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.err
}

func newTestReconciler(accounts *fakeAccounts, granter *fakeGranter) (*Reconciler, *pending.MemoryStore) {
	store := pending.NewMemoryStore()
	return New(accounts, granter, store, 5*time.Second), store
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		account impact.Account
		want    bool
	}{
		{"fresh account", impact.Account{ImpactPoints: 0, ProjectsSupported: 0}, true},
		{"bonus already seeded", impact.Account{ImpactPoints: 50, ProjectsSupported: 0}, true},
		{"welcome already shown", impact.Account{ImpactPoints: 0, WelcomeShown: true}, false},
		{"established account", impact.Account{ImpactPoints: 340, ProjectsSupported: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &fakeAccounts{account: &tt.account}
			r, _ := newTestReconciler(accounts, &fakeGranter{})

			got, err := r.Classify(context.Background(), "user-1", "token")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyBackendError(t *testing.T) {
	accounts := &fakeAccounts{err: errors.New("backend down")}
	r, _ := newTestReconciler(accounts, &fakeGranter{})

	_, err := r.Classify(context.Background(), "user-1", "token")
	assert.Error(t, err)
}

func TestEnsureBonusCollapsesConcurrentCalls(t *testing.T) {
	accounts := &fakeAccounts{account: &impact.Account{}}
	granter := &fakeGranter{block: make(chan struct{})}
	r, _ := newTestReconciler(accounts, granter)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.EnsureBonus(context.Background(), "user-1", "token")
		}()
	}

	// let the goroutines pile onto the in-flight call
	assert.Eventually(t, func() bool {
		return granter.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	close(granter.block)
	wg.Wait()

	assert.Equal(t, int32(1), granter.calls.Load())
}

func TestEnsureBonusInvalidatesCache(t *testing.T) {
	accounts := &fakeAccounts{account: &impact.Account{}}
	r, _ := newTestReconciler(accounts, &fakeGranter{})

	require.NoError(t, r.EnsureBonus(context.Background(), "user-1", "token"))
	assert.Equal(t, []string{"user-1"}, accounts.invalidated)
}

func TestEnsureBonusPropagatesError(t *testing.T) {
	accounts := &fakeAccounts{account: &impact.Account{}}
	granter := &fakeGranter{err: errors.New("credit failed")}
	r, _ := newTestReconciler(accounts, granter)

	err := r.EnsureBonus(context.Background(), "user-1", "token")
	assert.Error(t, err)
	assert.Empty(t, accounts.invalidated)
}

func TestSpawnAndDrain(t *testing.T) {
	accounts := &fakeAccounts{account: &impact.Account{}}
	granter := &fakeGranter{}
	r, _ := newTestReconciler(accounts, granter)

	r.Spawn("user-1", "token")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Drain(ctx))
	assert.Equal(t, int32(1), granter.calls.Load())
}

func TestDrainTimesOut(t *testing.T) {
	accounts := &fakeAccounts{account: &impact.Account{}}
	granter := &fakeGranter{block: make(chan struct{})}
	defer close(granter.block)
	r, _ := newTestReconciler(accounts, granter)

	r.Spawn("user-1", "token")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Drain(ctx), context.DeadlineExceeded)
}

func TestMarkNewUserFirstWriterWins(t *testing.T) {
	accounts := &fakeAccounts{account: &impact.Account{}}
	r, store := newTestReconciler(accounts, &fakeGranter{})

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &pending.ResumeContext{
		JourneyID:    "journey-1",
		Version:      pending.ContextVersion,
		CheckNewUser: true,
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	require.NoError(t, r.MarkNewUser(ctx, "journey-1", true))
	require.NoError(t, r.MarkNewUser(ctx, "journey-1", false))

	rc, err := store.Get(ctx, "journey-1")
	require.NoError(t, err)
	require.NotNil(t, rc.IsNewUser)
	assert.True(t, *rc.IsNewUser)
	assert.False(t, rc.CheckNewUser)
}

func TestMarkNewUserMissingContext(t *testing.T) {
	accounts := &fakeAccounts{account: &impact.Account{}}
	r, _ := newTestReconciler(accounts, &fakeGranter{})

	err := r.MarkNewUser(context.Background(), "nope", true)
	assert.ErrorIs(t, err, pending.ErrContextNotFound)
}
