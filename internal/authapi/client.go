package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
)

// ErrInvalidToken is returned when an access token fails verification
var ErrInvalidToken = errors.New("invalid access token")

// ErrAuthFailed is returned when the auth service rejects credentials
var ErrAuthFailed = errors.New("authentication failed")

// Session is the credential material for an authenticated user
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// User is the auth service's view of an account
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Client talks to the hosted auth service (password grant, signup with
// confirmation email, user lookup) and verifies its access tokens
// locally using the shared HS256 secret.
type Client struct {
	baseURL    string
	apiKey     string
	jwtSecret  []byte
	httpClient *http.Client
}

// NewClient creates a new auth service client
func NewClient(baseURL, apiKey string, jwtSecret []byte) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		jwtSecret:  jwtSecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// SessionFromTokens builds a session from URL-delivered tokens (the
// email-confirmation path). The access token is verified locally; no
// network call is needed.
func (c *Client) SessionFromTokens(accessToken, refreshToken string) (*Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, ErrInvalidToken
	}

	var claims accessClaims
	token, err := jwt.ParseWithClaims(accessToken, &claims, func(t *jwt.Token) (any, error) {
		return c.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	session := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       claims.Subject,
		Email:        claims.Email,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// PasswordGrant exchanges email/password credentials for a session
func (c *Client) PasswordGrant(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}

	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// IdentityGrant exchanges a verified provider ID token for a session.
// Used on the direct-provider callback path, where the code exchange
// happens in this service rather than in the auth service.
func (c *Client) IdentityGrant(ctx context.Context, provider, idToken string) (*Session, error) {
	body := map[string]string{"provider": provider, "id_token": idToken}

	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=id_token", "", body, &resp); err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// Signup registers a new account. The auth service sends a confirmation
// email whose link redirects to emailRedirectTo, which must already
// carry the resume destination as a query parameter: local storage is
// not guaranteed to survive until the link is clicked.
func (c *Client) Signup(ctx context.Context, email, password, emailRedirectTo string) error {
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if emailRedirectTo != "" {
		body["options"] = map[string]string{"email_redirect_to": emailRedirectTo}
	}

	return c.post(ctx, "/signup", "", body, nil)
}

// GetUser fetches the account behind an access token. Used as the final
// session check before declaring an arrival unauthenticated.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &user, nil
}

// RefreshSession exchanges a refresh token for a fresh session
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}

	var resp tokenResponse
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}

	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.User.ID,
		Email:        resp.User.Email,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.LogDebugWithFields("authapi", "Auth service rejected request", map[string]any{
			"path":   path,
			"status": resp.StatusCode,
			"body":   string(msg),
		})
		return ErrAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// ConfirmationRedirect builds the emailRedirectTo value for a signup:
// the callback URL with the resume destination embedded as returnTo.
func ConfirmationRedirect(baseURL, returnTo string) string {
	redirect := baseURL + "/auth/callback"
	if returnTo != "" {
		redirect += "?returnTo=" + url.QueryEscape(returnTo)
	}
	return redirect
}
