package callback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/Dopaya1/dopaya-app-sub001/internal/authapi"
	"github.com/Dopaya1/dopaya-app-sub001/internal/crypto"
	"github.com/Dopaya1/dopaya-app-sub001/internal/idp"
	"github.com/Dopaya1/dopaya-app-sub001/internal/resume"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

type fakeAuth struct {
	session      *authapi.Session
	tokensErr    error
	refreshed    *authapi.Session
	refreshErr   error
	granted      *authapi.Session
	grantErr     error
	userErr      error
	grantedWith  []string
	refreshCalls int
}

func (f *fakeAuth) SessionFromTokens(accessToken, refreshToken string) (*authapi.Session, error) {
	if f.tokensErr != nil {
		return nil, f.tokensErr
	}
	return f.session, nil
}

func (f *fakeAuth) RefreshSession(_ context.Context, refreshToken string) (*authapi.Session, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshed, nil
}

func (f *fakeAuth) IdentityGrant(_ context.Context, provider, idToken string) (*authapi.Session, error) {
	f.grantedWith = []string{provider, idToken}
	if f.grantErr != nil {
		return nil, f.grantErr
	}
	return f.granted, nil
}

func (f *fakeAuth) GetUser(_ context.Context, accessToken string) (*authapi.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return &authapi.User{ID: "user-1"}, nil
}

type fakeReconciler struct {
	isNew       bool
	classifyErr error
	spawned     []string
	marked      map[string]bool
	markErr     error
}

func (f *fakeReconciler) Classify(_ context.Context, userID, _ string) (bool, error) {
	if f.classifyErr != nil {
		return false, f.classifyErr
	}
	return f.isNew, nil
}

func (f *fakeReconciler) Spawn(userID, _ string) {
	f.spawned = append(f.spawned, userID)
}

func (f *fakeReconciler) MarkNewUser(_ context.Context, journeyID string, isNew bool) error {
	if f.markErr != nil {
		return f.markErr
	}
	if f.marked == nil {
		f.marked = map[string]bool{}
	}
	f.marked[journeyID] = isNew
	return nil
}

type fakeSelector struct {
	journeyID string
	returnTo  string
	referer   string
	target    *resume.Target
}

func (f *fakeSelector) Select(_ context.Context, journeyID, returnTo, referer string) *resume.Target {
	f.journeyID = journeyID
	f.returnTo = returnTo
	f.referer = referer
	if f.target != nil {
		return f.target
	}
	return &resume.Target{Path: "/dashboard", Source: resume.SourceDefault}
}

type fakeInvalidator struct {
	userIDs []string
}

func (f *fakeInvalidator) Invalidate(userID string) {
	f.userIDs = append(f.userIDs, userID)
}

type fakeProvider struct {
	exchangeErr error
	identity    *idp.Identity
	infoErr     error
	idToken     string
}

func (f *fakeProvider) Type() string { return "google" }

func (f *fakeProvider) AuthURL(state string) string {
	return "https://provider.example/auth?state=" + state
}

func (f *fakeProvider) ExchangeCode(_ context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	token := &oauth2.Token{AccessToken: "provider-access"}
	if f.idToken != "" {
		token = token.WithExtra(map[string]any{"id_token": f.idToken})
	}
	return token, nil
}

func (f *fakeProvider) UserInfo(_ context.Context, _ *oauth2.Token) (*idp.Identity, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if f.identity != nil {
		return f.identity, nil
	}
	return &idp.Identity{Subject: "sub-1", Email: "user@example.org", EmailVerified: true}, nil
}

func testSession() *authapi.Session {
	return &authapi.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		UserID:       "user-1",
		Email:        "user@example.org",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func newResolver(auth *fakeAuth, rec *fakeReconciler, sel *fakeSelector, inv *fakeInvalidator, provider idp.Provider) *Resolver {
	signer := crypto.NewTokenSigner(testSigningKey, 10*time.Minute)
	return NewResolver(auth, provider, rec, sel, inv, signer)
}

func TestResolveProviderError(t *testing.T) {
	r := newResolver(&fakeAuth{}, &fakeReconciler{}, &fakeSelector{}, &fakeInvalidator{}, nil)

	res := r.Resolve(context.Background(), &Arrival{
		ErrorCode:        "access_denied",
		ErrorDescription: "user cancelled",
	})

	require.True(t, res.Failed())
	assert.Equal(t, FailureProviderError, res.Failure.Code)
	assert.Equal(t, "user cancelled", res.Failure.Description)
	assert.Nil(t, res.Session)
}

func TestResolveConfirmationTokens(t *testing.T) {
	auth := &fakeAuth{session: testSession()}
	rec := &fakeReconciler{isNew: true}
	sel := &fakeSelector{}
	inv := &fakeInvalidator{}
	r := newResolver(auth, rec, sel, inv, nil)

	res := r.Resolve(context.Background(), &Arrival{
		JourneyID:    "j1",
		ReturnTo:     "/support/ignis-careers",
		AccessToken:  "at",
		RefreshToken: "rt",
	})

	require.False(t, res.Failed())
	assert.Equal(t, StateResuming, res.State)
	assert.True(t, res.IsNewUser)
	assert.Equal(t, []string{"user-1"}, inv.userIDs)
	assert.Equal(t, []string{"user-1"}, rec.spawned)
	assert.Equal(t, map[string]bool{"j1": true}, rec.marked)
	assert.Equal(t, "/support/ignis-careers", sel.returnTo)
	assert.Equal(t, "j1", sel.journeyID)
}

func TestResolveExpiredTokensFallBackToRefresh(t *testing.T) {
	auth := &fakeAuth{
		tokensErr: crypto.ErrTokenExpired,
		refreshed: testSession(),
	}
	r := newResolver(auth, &fakeReconciler{}, &fakeSelector{}, &fakeInvalidator{}, nil)

	res := r.Resolve(context.Background(), &Arrival{AccessToken: "at", RefreshToken: "rt"})

	require.False(t, res.Failed())
	assert.Equal(t, 1, auth.refreshCalls)
}

func TestResolveRejectedTokens(t *testing.T) {
	auth := &fakeAuth{
		tokensErr:  authapi.ErrInvalidToken,
		refreshErr: authapi.ErrAuthFailed,
	}
	r := newResolver(auth, &fakeReconciler{}, &fakeSelector{}, &fakeInvalidator{}, nil)

	res := r.Resolve(context.Background(), &Arrival{AccessToken: "at", RefreshToken: "rt"})

	require.True(t, res.Failed())
	assert.Equal(t, FailureInvalidTokens, res.Failure.Code)
}

func TestResolveProviderCodePath(t *testing.T) {
	auth := &fakeAuth{granted: testSession()}
	rec := &fakeReconciler{}
	sel := &fakeSelector{}
	provider := &fakeProvider{idToken: "provider-id-token"}
	r := newResolver(auth, rec, sel, &fakeInvalidator{}, provider)

	signer := crypto.NewTokenSigner(testSigningKey, 10*time.Minute)
	state, err := signer.Sign(StateToken{JourneyID: "j-state", ReturnTo: "/projects"})
	require.NoError(t, err)

	res := r.Resolve(context.Background(), &Arrival{Code: "auth-code", State: state})

	require.False(t, res.Failed())
	assert.Equal(t, []string{"google", "provider-id-token"}, auth.grantedWith)
	// state token wins over the absent cookie and carries the returnTo
	assert.Equal(t, "j-state", sel.journeyID)
	assert.Equal(t, "/projects", sel.returnTo)
}

func TestResolveTamperedState(t *testing.T) {
	r := newResolver(&fakeAuth{}, &fakeReconciler{}, &fakeSelector{}, &fakeInvalidator{}, &fakeProvider{})

	res := r.Resolve(context.Background(), &Arrival{Code: "auth-code", State: "bogus.state"})

	require.True(t, res.Failed())
	assert.Equal(t, FailureInvalidState, res.Failure.Code)
}

func TestResolveUnverifiedProviderEmail(t *testing.T) {
	provider := &fakeProvider{
		idToken:  "idt",
		identity: &idp.Identity{Subject: "s", Email: "x@example.org", EmailVerified: false},
	}
	r := newResolver(&fakeAuth{}, &fakeReconciler{}, &fakeSelector{}, &fakeInvalidator{}, provider)

	signer := crypto.NewTokenSigner(testSigningKey, 10*time.Minute)
	state, err := signer.Sign(StateToken{JourneyID: "j1"})
	require.NoError(t, err)

	res := r.Resolve(context.Background(), &Arrival{Code: "c", State: state})

	require.True(t, res.Failed())
	assert.Equal(t, FailureUnverified, res.Failure.Code)
}

func TestResolveAmbientSession(t *testing.T) {
	auth := &fakeAuth{}
	rec := &fakeReconciler{}
	r := newResolver(auth, rec, &fakeSelector{}, &fakeInvalidator{}, nil)

	res := r.Resolve(context.Background(), &Arrival{
		JourneyID:      "j1",
		AmbientSession: testSession(),
	})

	require.False(t, res.Failed())
	assert.Equal(t, "user-1", res.Session.UserID)
}

func TestResolveStaleAmbientSessionRefreshes(t *testing.T) {
	auth := &fakeAuth{userErr: authapi.ErrAuthFailed, refreshed: testSession()}
	r := newResolver(auth, &fakeReconciler{}, &fakeSelector{}, &fakeInvalidator{}, nil)

	res := r.Resolve(context.Background(), &Arrival{AmbientSession: testSession()})

	require.False(t, res.Failed())
	assert.Equal(t, 1, auth.refreshCalls)
}

func TestResolveNoCredential(t *testing.T) {
	r := newResolver(&fakeAuth{}, &fakeReconciler{}, &fakeSelector{}, &fakeInvalidator{}, nil)

	res := r.Resolve(context.Background(), &Arrival{JourneyID: "j1"})

	require.True(t, res.Failed())
	assert.Equal(t, FailureNoCredential, res.Failure.Code)
}

func TestResolveClassificationFailureFailsSafe(t *testing.T) {
	auth := &fakeAuth{session: testSession()}
	rec := &fakeReconciler{classifyErr: errors.New("backend down")}
	r := newResolver(auth, rec, &fakeSelector{}, &fakeInvalidator{}, nil)

	res := r.Resolve(context.Background(), &Arrival{
		JourneyID:    "j1",
		AccessToken:  "at",
		RefreshToken: "rt",
	})

	require.False(t, res.Failed())
	assert.False(t, res.IsNewUser)
	assert.Empty(t, rec.spawned)
	// the journey still gets a definitive answer recorded
	assert.Equal(t, map[string]bool{"j1": false}, rec.marked)
}

func TestResolveReturningUserNoSpawn(t *testing.T) {
	auth := &fakeAuth{session: testSession()}
	rec := &fakeReconciler{isNew: false}
	r := newResolver(auth, rec, &fakeSelector{}, &fakeInvalidator{}, nil)

	res := r.Resolve(context.Background(), &Arrival{AccessToken: "at", RefreshToken: "rt"})

	require.False(t, res.Failed())
	assert.Empty(t, rec.spawned)
}
