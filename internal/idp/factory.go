package idp

import (
	"fmt"

	"github.com/Dopaya1/dopaya-app-sub001/internal/config"
)

// NewProvider creates a Provider from configuration
func NewProvider(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case config.ProviderKindGoogle:
		return NewGoogleProvider(cfg.ClientID, string(cfg.ClientSecret), cfg.RedirectURI), nil
	case config.ProviderKindOIDC:
		return NewOIDCProvider(OIDCConfig{
			AuthorizationURL: cfg.AuthURL,
			TokenURL:         cfg.TokenURL,
			UserInfoURL:      cfg.UserInfoURL,
			ClientID:         cfg.ClientID,
			ClientSecret:     string(cfg.ClientSecret),
			RedirectURI:      cfg.RedirectURI,
			Scopes:           cfg.Scopes,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Kind)
	}
}
