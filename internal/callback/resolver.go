// Package callback resolves the single /auth/callback entry point: it
// classifies how the user arrived, establishes a session, decides the
// welcome-bonus question and hands off to resume dispatch.
package callback

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dopaya1/dopaya-app-sub001/internal/authapi"
	"github.com/Dopaya1/dopaya-app-sub001/internal/crypto"
	"github.com/Dopaya1/dopaya-app-sub001/internal/idp"
	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
	"github.com/Dopaya1/dopaya-app-sub001/internal/pending"
	"github.com/Dopaya1/dopaya-app-sub001/internal/resume"
)

// State names a stage of callback resolution
type State string

const (
	StateAwaitingCredential  State = "awaiting_credential"
	StateSessionEstablishing State = "session_establishing"
	StateClassifying         State = "classifying"
	StateReconciling         State = "reconciling"
	StateResuming            State = "resuming"
	StateFailed              State = "failed"
)

// Failure codes surfaced on the terminal failure page
const (
	FailureProviderError = "provider_error"
	FailureInvalidTokens = "invalid_tokens"
	FailureInvalidState  = "invalid_state"
	FailureExchange      = "exchange_failed"
	FailureUnverified    = "email_unverified"
	FailureNoCredential  = "no_credential"
)

// StateToken rides through the provider round-trip as the signed OAuth
// state parameter. It carries the journey binding because the journey
// cookie is not guaranteed to survive a cross-site redirect.
type StateToken struct {
	JourneyID string `json:"journey_id"`
	ReturnTo  string `json:"return_to,omitempty"`
}

// Arrival is everything extracted from the callback request
type Arrival struct {
	// JourneyID from the journey cookie, may be empty
	JourneyID string
	// ReturnTo is the explicit ?returnTo= parameter
	ReturnTo string
	Referer  string

	// ErrorCode/ErrorDescription report a provider-side denial
	ErrorCode        string
	ErrorDescription string

	// AccessToken/RefreshToken arrive on the email-confirmation path
	AccessToken  string
	RefreshToken string

	// Code/State arrive on the direct-provider path
	Code  string
	State string

	// AmbientSession is the decrypted session cookie, possibly stale
	AmbientSession *authapi.Session
}

// Failure describes a terminal resolution failure
type Failure struct {
	Code        string
	Description string
}

// Result is the outcome of a resolution run
type Result struct {
	State     State
	Session   *authapi.Session
	IsNewUser bool
	Target    *resume.Target
	Failure   *Failure
}

// Failed reports whether resolution ended on the failure state
func (r *Result) Failed() bool {
	return r.State == StateFailed
}

// AuthService is the slice of the auth client the resolver needs
type AuthService interface {
	SessionFromTokens(accessToken, refreshToken string) (*authapi.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*authapi.Session, error)
	IdentityGrant(ctx context.Context, provider, idToken string) (*authapi.Session, error)
	GetUser(ctx context.Context, accessToken string) (*authapi.User, error)
}

// Reconciler is the bonus decision surface the resolver drives
type Reconciler interface {
	Classify(ctx context.Context, userID, accessToken string) (bool, error)
	Spawn(userID, accessToken string)
	MarkNewUser(ctx context.Context, journeyID string, isNew bool) error
}

// TargetSelector picks the post-auth destination
type TargetSelector interface {
	Select(ctx context.Context, journeyID, returnTo, referer string) *resume.Target
}

// AccountInvalidator drops cached impact snapshots
type AccountInvalidator interface {
	Invalidate(userID string)
}

// Resolver runs the callback state machine. Each Resolve call walks
// AwaitingCredential through Resuming, or stops at Failed; the terminal
// state is always one of those two.
type Resolver struct {
	auth        AuthService
	provider    idp.Provider
	reconciler  Reconciler
	selector    TargetSelector
	accounts    AccountInvalidator
	stateSigner crypto.TokenSigner
}

// NewResolver creates a Resolver. provider may be nil when no direct
// identity provider is configured; the code path then always fails.
func NewResolver(auth AuthService, provider idp.Provider, reconciler Reconciler, selector TargetSelector, accounts AccountInvalidator, stateSigner crypto.TokenSigner) *Resolver {
	return &Resolver{
		auth:        auth,
		provider:    provider,
		reconciler:  reconciler,
		selector:    selector,
		accounts:    accounts,
		stateSigner: stateSigner,
	}
}

// Resolve runs one callback execution to its terminal state
func (r *Resolver) Resolve(ctx context.Context, a *Arrival) *Result {
	res := &Result{State: StateAwaitingCredential}

	if a.ErrorCode != "" {
		return r.fail(res, FailureProviderError, a.ErrorDescription)
	}

	res.State = StateSessionEstablishing
	session, journeyID, returnTo, failure := r.establish(ctx, a)
	if failure != nil {
		res.Failure = failure
		res.State = StateFailed
		log.LogWarnWithFields("callback", "Session establishment failed", map[string]any{
			"code":   failure.Code,
			"detail": failure.Description,
		})
		return res
	}
	return r.complete(ctx, res, session, journeyID, returnTo, a.Referer)
}

// ResolveWithSession runs the post-establishment stages for a session
// obtained outside the callback, such as a password login. The same
// classification and reconciliation rules apply.
func (r *Resolver) ResolveWithSession(ctx context.Context, session *authapi.Session, journeyID, returnTo, referer string) *Result {
	res := &Result{State: StateSessionEstablishing}
	return r.complete(ctx, res, session, journeyID, returnTo, referer)
}

func (r *Resolver) complete(ctx context.Context, res *Result, session *authapi.Session, journeyID, returnTo, referer string) *Result {
	res.Session = session

	// every execution starts from fresh numbers; a cached snapshot
	// from before this auth completion could misclassify the account
	r.accounts.Invalidate(session.UserID)

	res.State = StateClassifying
	isNew, err := r.reconciler.Classify(ctx, session.UserID, session.AccessToken)
	if err != nil {
		// fail safe toward no bonus; the next sign-in re-evaluates
		log.LogWarnWithFields("callback", "Classification failed, treating as returning user", map[string]any{
			"user_id": session.UserID,
			"error":   err.Error(),
		})
		isNew = false
	}
	res.IsNewUser = isNew

	res.State = StateReconciling
	if journeyID != "" {
		if err := r.reconciler.MarkNewUser(ctx, journeyID, isNew); err != nil && !errors.Is(err, pending.ErrContextNotFound) {
			log.LogWarnWithFields("callback", "Failed to record classification", map[string]any{
				"journey_id": journeyID,
				"error":      err.Error(),
			})
		}
	}
	if isNew {
		r.reconciler.Spawn(session.UserID, session.AccessToken)
	}

	res.State = StateResuming
	res.Target = r.selector.Select(ctx, journeyID, returnTo, referer)

	log.LogInfoWithFields("callback", "Callback resolved", map[string]any{
		"user_id":  session.UserID,
		"new_user": isNew,
		"source":   string(res.Target.Source),
	})
	return res
}

// establish picks the credential path by priority: explicit tokens,
// provider code, then the ambient session checked against the auth
// service. It returns the effective journey ID and returnTo, which the
// signed state may override since it survives where cookies may not.
func (r *Resolver) establish(ctx context.Context, a *Arrival) (*authapi.Session, string, string, *Failure) {
	journeyID := a.JourneyID
	returnTo := a.ReturnTo

	switch {
	case a.AccessToken != "" && a.RefreshToken != "":
		session, err := r.auth.SessionFromTokens(a.AccessToken, a.RefreshToken)
		if err != nil {
			if errors.Is(err, crypto.ErrTokenExpired) || errors.Is(err, authapi.ErrInvalidToken) {
				session, err = r.auth.RefreshSession(ctx, a.RefreshToken)
			}
			if err != nil {
				return nil, "", "", &Failure{Code: FailureInvalidTokens, Description: "confirmation tokens were not accepted"}
			}
		}
		return session, journeyID, returnTo, nil

	case a.Code != "" && a.State != "":
		if r.provider == nil {
			return nil, "", "", &Failure{Code: FailureInvalidState, Description: "no identity provider configured"}
		}
		var st StateToken
		if err := r.stateSigner.Verify(a.State, &st); err != nil {
			return nil, "", "", &Failure{Code: FailureInvalidState, Description: "state parameter failed verification"}
		}
		if st.JourneyID != "" {
			journeyID = st.JourneyID
		}
		if returnTo == "" {
			returnTo = st.ReturnTo
		}

		token, err := r.provider.ExchangeCode(ctx, a.Code)
		if err != nil {
			return nil, "", "", &Failure{Code: FailureExchange, Description: "code exchange failed"}
		}
		identity, err := r.provider.UserInfo(ctx, token)
		if err != nil {
			return nil, "", "", &Failure{Code: FailureExchange, Description: "identity lookup failed"}
		}
		if !identity.EmailVerified {
			return nil, "", "", &Failure{Code: FailureUnverified, Description: "provider account email is not verified"}
		}
		idToken, _ := token.Extra("id_token").(string)
		if idToken == "" {
			return nil, "", "", &Failure{Code: FailureExchange, Description: "provider returned no id token"}
		}
		session, err := r.auth.IdentityGrant(ctx, r.provider.Type(), idToken)
		if err != nil {
			return nil, "", "", &Failure{Code: FailureExchange, Description: "identity grant was rejected"}
		}
		return session, journeyID, returnTo, nil

	case a.AmbientSession != nil:
		// final check: the cookie may outlive the session it wraps
		if _, err := r.auth.GetUser(ctx, a.AmbientSession.AccessToken); err != nil {
			if a.AmbientSession.RefreshToken != "" {
				session, refreshErr := r.auth.RefreshSession(ctx, a.AmbientSession.RefreshToken)
				if refreshErr == nil {
					return session, journeyID, returnTo, nil
				}
			}
			return nil, "", "", &Failure{Code: FailureNoCredential, Description: "existing session is no longer valid"}
		}
		return a.AmbientSession, journeyID, returnTo, nil
	}

	return nil, "", "", &Failure{Code: FailureNoCredential, Description: "no credential material arrived"}
}

func (r *Resolver) fail(res *Result, code, description string) *Result {
	if description == "" {
		description = fmt.Sprintf("authentication failed (%s)", code)
	}
	res.State = StateFailed
	res.Failure = &Failure{Code: code, Description: description}
	log.LogWarnWithFields("callback", "Callback failed", map[string]any{
		"code": code,
	})
	return res
}
