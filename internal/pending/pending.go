package pending

import (
	"context"
	"errors"
	"time"
)

// ErrContextNotFound is returned when no resume context exists for a
// journey, or the stored one has expired
var ErrContextNotFound = errors.New("resume context not found")

// ContextVersion is the current ResumeContext schema version. Stored
// contexts with a different version are treated as absent on read.
const ContextVersion = 1

// ActionKind enumerates the kinds of deferred user actions
type ActionKind string

const (
	// ActionResumeCheckout resumes a support checkout at a chosen amount
	ActionResumeCheckout ActionKind = "resume-checkout"
	// ActionReopenPaymentDialog re-opens the payment dialog on the
	// destination page
	ActionReopenPaymentDialog ActionKind = "reopen-payment-dialog"
)

// PendingAction is the captured user intent to resume after an external
// identity hand-off
type PendingAction struct {
	Kind      ActionKind `json:"kind" firestore:"kind"`
	TargetURL string     `json:"target_url" firestore:"target_url"`
	Amount    int        `json:"amount,omitempty" firestore:"amount,omitempty"`
	// CreatedAt is diagnostics only; expiry is enforced on the
	// enclosing ResumeContext
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
}

// ResumeContext is the single versioned object holding everything a
// journey needs to resume after control returns: the pending action plus
// the flag set that used to live as loose storage keys. One context per
// journey; concurrent writers overwrite (last write wins), which is
// acceptable because only one pending action is meaningful per journey.
type ResumeContext struct {
	JourneyID string         `json:"journey_id" firestore:"journey_id"`
	Version   int            `json:"version" firestore:"version"`
	Action    *PendingAction `json:"action,omitempty" firestore:"action,omitempty"`
	// ReturnURL is the generic post-auth destination for flows that
	// aren't a support checkout
	ReturnURL         string `json:"return_url,omitempty" firestore:"return_url,omitempty"`
	OpenPaymentDialog bool   `json:"open_payment_dialog,omitempty" firestore:"open_payment_dialog,omitempty"`
	WaitingForAuth    bool   `json:"waiting_for_auth,omitempty" firestore:"waiting_for_auth,omitempty"`
	// IsNewUser is tri-state: nil means no stage of the journey has
	// decided yet. Once set it is never downgraded by a later, less
	// informed execution.
	IsNewUser         *bool     `json:"is_new_user,omitempty" firestore:"is_new_user,omitempty"`
	CheckNewUser      bool      `json:"check_new_user,omitempty" firestore:"check_new_user,omitempty"`
	WelcomeModalShown bool      `json:"welcome_modal_shown,omitempty" firestore:"welcome_modal_shown,omitempty"`
	CreatedAt         time.Time `json:"created_at" firestore:"created_at"`
	ExpiresAt         time.Time `json:"expires_at" firestore:"expires_at"`
}

// Expired reports whether the context is past its expiry
func (rc *ResumeContext) Expired(now time.Time) bool {
	return !rc.ExpiresAt.IsZero() && now.After(rc.ExpiresAt)
}

// Clone returns a deep copy so callers can't mutate stored state
func (rc *ResumeContext) Clone() *ResumeContext {
	clone := *rc
	if rc.Action != nil {
		action := *rc.Action
		clone.Action = &action
	}
	if rc.IsNewUser != nil {
		v := *rc.IsNewUser
		clone.IsNewUser = &v
	}
	return &clone
}

// Store persists resume contexts across the hard navigation boundary of
// an external redirect. Implementations must make reads of expired
// contexts behave as absent.
type Store interface {
	// Put stores or replaces the context for its journey ID
	Put(ctx context.Context, rc *ResumeContext) error

	// Get retrieves a context, or ErrContextNotFound
	Get(ctx context.Context, journeyID string) (*ResumeContext, error)

	// Delete removes a context; deleting a missing context is not an error
	Delete(ctx context.Context, journeyID string) error

	// DeleteExpired removes expired contexts and reports how many.
	// Backends with native TTL may report zero.
	DeleteExpired(ctx context.Context) (int, error)

	// Count reports how many contexts are currently stored
	Count(ctx context.Context) (int, error)
}
