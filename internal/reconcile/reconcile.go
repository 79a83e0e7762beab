// Package reconcile decides whether a freshly authenticated user still
// needs the one-time welcome bonus and credits it at most once.
package reconcile

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Dopaya1/dopaya-app-sub001/internal/impact"
	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
	"github.com/Dopaya1/dopaya-app-sub001/internal/pending"
)

// BonusGranter is the backend call that credits the welcome bonus
type BonusGranter interface {
	GrantWelcomeBonus(ctx context.Context, accessToken string) error
}

// AccountCache reads impact accounts, with invalidation after writes
type AccountCache interface {
	GetAccount(ctx context.Context, userID, accessToken string) (*impact.Account, error)
	Invalidate(userID string)
}

// Reconciler classifies accounts and grants the welcome bonus. Grants
// for the same user are collapsed through singleflight so concurrent
// callbacks (double-click, two tabs) produce a single backend call.
type Reconciler struct {
	accounts AccountCache
	granter  BonusGranter
	store    pending.Store
	timeout  time.Duration

	group singleflight.Group
	wg    sync.WaitGroup
}

// New creates a Reconciler. timeout bounds each spawned grant attempt.
func New(accounts AccountCache, granter BonusGranter, store pending.Store, timeout time.Duration) *Reconciler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reconciler{
		accounts: accounts,
		granter:  granter,
		store:    store,
		timeout:  timeout,
	}
}

// Classify reports whether the account behind accessToken still looks
// freshly created and has not seen the welcome flow.
func (r *Reconciler) Classify(ctx context.Context, userID, accessToken string) (bool, error) {
	account, err := r.accounts.GetAccount(ctx, userID, accessToken)
	if err != nil {
		return false, err
	}
	if account.WelcomeShown {
		return false, nil
	}
	return impact.IsBonusCandidate(account), nil
}

// EnsureBonus credits the welcome bonus for userID exactly once among
// concurrent callers. The backend endpoint is itself idempotent, so a
// retry after an earlier partial failure is safe.
func (r *Reconciler) EnsureBonus(ctx context.Context, userID, accessToken string) error {
	_, err, _ := r.group.Do(userID, func() (any, error) {
		if err := r.granter.GrantWelcomeBonus(ctx, accessToken); err != nil {
			return nil, err
		}
		r.accounts.Invalidate(userID)
		return nil, nil
	})
	return err
}

// Spawn runs EnsureBonus in a detached goroutine so the callback
// response is not held up by the backend. The attempt carries its own
// deadline and survives the request context; failures are logged and
// left to the next sign-in to repair.
func (r *Reconciler) Spawn(userID, accessToken string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.EnsureBonus(ctx, userID, accessToken); err != nil {
			log.LogErrorWithFields("reconcile", "Welcome bonus grant failed", map[string]any{
				"user_id": userID,
				"error":   err.Error(),
			})
			return
		}
		log.LogDebugWithFields("reconcile", "Welcome bonus granted", map[string]any{
			"user_id": userID,
		})
	}()
}

// Drain waits for in-flight spawned grants, bounded by ctx
func (r *Reconciler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MarkNewUser records the classification outcome on the journey's
// resume context, but only if no earlier run already decided. The
// first writer wins so a re-entered callback cannot flip an account
// from new to returning.
func (r *Reconciler) MarkNewUser(ctx context.Context, journeyID string, isNew bool) error {
	rc, err := r.store.Get(ctx, journeyID)
	if err != nil {
		return err
	}
	if rc.IsNewUser != nil {
		return nil
	}
	rc.IsNewUser = &isNew
	rc.CheckNewUser = false
	return r.store.Put(ctx, rc)
}
