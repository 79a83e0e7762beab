package idp

import (
	"context"

	"golang.org/x/oauth2"
)

// Identity represents the user information an identity provider reports
// after a successful hand-off
type Identity struct {
	ProviderType  string `json:"provider_type"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Provider abstracts the external identity provider used for the OAuth
// hand-off path. The email-confirmation and password paths go through
// the hosted auth service instead.
type Provider interface {
	// Type returns the provider type identifier (e.g., "google", "oidc")
	Type() string

	// AuthURL generates the authorization URL carrying the signed state
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// UserInfo fetches the authenticated identity
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)
}
