package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Dopaya1/dopaya-app-sub001/internal/authapi"
	"github.com/Dopaya1/dopaya-app-sub001/internal/callback"
	"github.com/Dopaya1/dopaya-app-sub001/internal/cookie"
	"github.com/Dopaya1/dopaya-app-sub001/internal/crypto"
	"github.com/Dopaya1/dopaya-app-sub001/internal/idp"
	jsonwriter "github.com/Dopaya1/dopaya-app-sub001/internal/json"
	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
	"github.com/Dopaya1/dopaya-app-sub001/internal/pending"
	"github.com/Dopaya1/dopaya-app-sub001/internal/resume"
)

// AuthClient is the slice of the auth service client the handlers use
type AuthClient interface {
	PasswordGrant(ctx context.Context, email, password string) (*authapi.Session, error)
	Signup(ctx context.Context, email, password, emailRedirectTo string) error
}

// Resolver runs callback resolution
type Resolver interface {
	Resolve(ctx context.Context, a *callback.Arrival) *callback.Result
	ResolveWithSession(ctx context.Context, session *authapi.Session, journeyID, returnTo, referer string) *callback.Result
}

// AuthHandler serves the auth journey endpoints: intent capture,
// password login, signup and the callback entry point.
type AuthHandler struct {
	baseURL          string
	auth             AuthClient
	resolver         Resolver
	store            pending.Store
	provider         idp.Provider
	stateSigner      crypto.TokenSigner
	sessionEncryptor crypto.Encryptor
	dispatcher       *resume.Dispatcher
	sessionTTL       time.Duration
	pendingTTL       time.Duration
}

// NewAuthHandler creates the auth journey handler. provider may be nil
// when password and email-confirmation are the only flows.
func NewAuthHandler(
	baseURL string,
	auth AuthClient,
	resolver Resolver,
	store pending.Store,
	provider idp.Provider,
	stateSigner crypto.TokenSigner,
	sessionEncryptor crypto.Encryptor,
	dispatcher *resume.Dispatcher,
	sessionTTL, pendingTTL time.Duration,
) *AuthHandler {
	return &AuthHandler{
		baseURL:          baseURL,
		auth:             auth,
		resolver:         resolver,
		store:            store,
		provider:         provider,
		stateSigner:      stateSigner,
		sessionEncryptor: sessionEncryptor,
		dispatcher:       dispatcher,
		sessionTTL:       sessionTTL,
		pendingTTL:       pendingTTL,
	}
}

type startRequest struct {
	Action            string `json:"action,omitempty"`
	TargetURL         string `json:"targetUrl,omitempty"`
	Amount            int    `json:"amount,omitempty"`
	ReturnTo          string `json:"returnTo,omitempty"`
	OpenPaymentDialog bool   `json:"openPaymentDialog,omitempty"`
}

type startResponse struct {
	JourneyID string `json:"journeyId"`
	AuthURL   string `json:"authUrl,omitempty"`
}

// StartHandler captures the user's intent before the external hand-off.
// It stores the resume context under a fresh journey ID, binds the
// journey to the browser with a cookie, and hands back the provider
// authorization URL when one is configured.
func (h *AuthHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return
	}

	var action *pending.PendingAction
	switch pending.ActionKind(req.Action) {
	case pending.ActionResumeCheckout, pending.ActionReopenPaymentDialog:
		if req.TargetURL == "" {
			jsonwriter.WriteBadRequest(w, "targetUrl is required for a pending action")
			return
		}
		action = &pending.PendingAction{
			Kind:      pending.ActionKind(req.Action),
			TargetURL: req.TargetURL,
			Amount:    req.Amount,
			CreatedAt: time.Now(),
		}
	default:
		if req.Action != "" {
			jsonwriter.WriteBadRequest(w, "Unknown action kind")
			return
		}
	}

	// reuse the journey if the browser already carries one so a second
	// click before completing auth overwrites rather than forks
	journeyID, err := cookie.GetJourney(r)
	if err != nil || journeyID == "" {
		journeyID = uuid.NewString()
	}

	now := time.Now()
	rc := &pending.ResumeContext{
		JourneyID:         journeyID,
		Version:           pending.ContextVersion,
		Action:            action,
		ReturnURL:         req.ReturnTo,
		OpenPaymentDialog: req.OpenPaymentDialog,
		WaitingForAuth:    true,
		CheckNewUser:      true,
		CreatedAt:         now,
		ExpiresAt:         now.Add(h.pendingTTL),
	}
	if err := h.store.Put(r.Context(), rc); err != nil {
		log.LogErrorWithFields("server", "Failed to store resume context", map[string]any{
			"journey_id": journeyID,
			"error":      err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Could not start auth journey")
		return
	}

	cookie.SetJourney(w, journeyID, h.pendingTTL)

	resp := startResponse{JourneyID: journeyID}
	if h.provider != nil {
		state, err := h.stateSigner.Sign(callback.StateToken{
			JourneyID: journeyID,
			ReturnTo:  req.ReturnTo,
		})
		if err != nil {
			jsonwriter.WriteInternalServerError(w, "Failed to prepare authorization")
			return
		}
		resp.AuthURL = h.provider.AuthURL(state)
	}

	jsonwriter.Write(w, resp)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	ReturnTo string `json:"returnTo,omitempty"`
}

type loginResponse struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	NewUser   bool   `json:"newUser"`
	ResumeURL string `json:"resumeUrl"`
}

// LoginHandler performs a password login inside the auth modal. The
// browser never leaves the page, so the resume destination comes back
// in the response body instead of a redirect.
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		jsonwriter.WriteBadRequest(w, "email and password are required")
		return
	}

	session, err := h.auth.PasswordGrant(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, authapi.ErrAuthFailed) {
			jsonwriter.WriteUnauthorized(w, "Invalid email or password")
			return
		}
		log.LogErrorWithFields("server", "Password grant failed", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Auth service unavailable")
		return
	}

	journeyID, _ := cookie.GetJourney(r)
	result := h.resolver.ResolveWithSession(r.Context(), session, journeyID, req.ReturnTo, r.Referer())

	if !h.setSessionCookie(w, result.Session) {
		return
	}
	cookie.ClearJourney(w)

	jsonwriter.Write(w, loginResponse{
		UserID:    result.Session.UserID,
		Email:     result.Session.Email,
		NewUser:   result.IsNewUser,
		ResumeURL: h.dispatcher.BuildURL(result.Target, result.IsNewUser),
	})
}

// SignupHandler registers an account. The confirmation email's link
// must carry the resume destination itself: the journey cookie may not
// exist in the browser that opens the link.
func (h *AuthHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || len(req.Password) < 6 {
		jsonwriter.WriteBadRequest(w, "email and a password of at least 6 characters are required")
		return
	}

	redirect := authapi.ConfirmationRedirect(h.baseURL, req.ReturnTo)
	if err := h.auth.Signup(r.Context(), req.Email, req.Password, redirect); err != nil {
		if errors.Is(err, authapi.ErrAuthFailed) {
			jsonwriter.WriteBadRequest(w, "Signup was rejected")
			return
		}
		log.LogErrorWithFields("server", "Signup failed", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Auth service unavailable")
		return
	}

	jsonwriter.WriteResponse(w, http.StatusAccepted, map[string]string{
		"status": "confirmation_email_sent",
	})
}

// CallbackHandler is the single entry point every auth flow returns to:
// provider redirects, confirmation links and stale bookmarks alike.
func (h *AuthHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	q := r.URL.Query()
	journeyID, _ := cookie.GetJourney(r)

	arrival := &callback.Arrival{
		JourneyID:        journeyID,
		ReturnTo:         q.Get("returnTo"),
		Referer:          r.Referer(),
		ErrorCode:        q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		AccessToken:      q.Get("access_token"),
		RefreshToken:     q.Get("refresh_token"),
		Code:             q.Get("code"),
		State:            q.Get("state"),
		AmbientSession:   sessionFromRequest(r, h.sessionEncryptor),
	}

	result := h.resolver.Resolve(r.Context(), arrival)
	if result.Failed() {
		cookie.ClearSession(w)
		renderAuthFailed(w, failureStatus(result.Failure.Code), AuthFailedPageData{
			Description: result.Failure.Description,
			RetryURL:    h.retryURL(arrival.ReturnTo),
			HomeURL:     h.baseURL + "/",
		})
		return
	}

	if !h.setSessionCookie(w, result.Session) {
		return
	}
	cookie.ClearJourney(w)

	h.dispatcher.Redirect(w, r, result.Target, result.IsNewUser)
}

// LogoutHandler clears the session and any captured journey
func (h *AuthHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	if journeyID, err := cookie.GetJourney(r); err == nil && journeyID != "" {
		if err := h.store.Delete(r.Context(), journeyID); err != nil {
			log.LogWarnWithFields("server", "Failed to delete resume context on logout", map[string]any{
				"journey_id": journeyID,
				"error":      err.Error(),
			})
		}
	}

	cookie.ClearSession(w)
	cookie.ClearJourney(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, session *authapi.Session) bool {
	value, err := encodeSessionCookie(h.sessionEncryptor, session)
	if err != nil {
		log.LogErrorWithFields("server", "Failed to seal session cookie", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to establish session")
		return false
	}
	cookie.SetSession(w, value, h.sessionTTL)
	return true
}

func (h *AuthHandler) retryURL(returnTo string) string {
	if returnTo != "" {
		return h.baseURL + "/login?returnTo=" + url.QueryEscape(returnTo)
	}
	return h.baseURL + "/login"
}

func failureStatus(code string) int {
	switch code {
	case callback.FailureExchange:
		return http.StatusBadGateway
	case callback.FailureProviderError:
		return http.StatusBadRequest
	default:
		return http.StatusUnauthorized
	}
}
