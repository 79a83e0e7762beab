package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTokenExpired is returned by Verify when a token is past its expiry
var ErrTokenExpired = errors.New("token expired")

// TokenSigner provides HMAC-signed JSON tokens with optional expiry.
// Signed tokens are how flow state survives the round trip through an
// external identity provider or an email link: the data travels inside
// the URL itself instead of in shared storage.
type TokenSigner struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenSigner creates a new token signer
func NewTokenSigner(signingKey []byte, ttl time.Duration) TokenSigner {
	return TokenSigner{
		signingKey: signingKey,
		ttl:        ttl,
	}
}

// tokenEnvelope wraps user data with expiry metadata
type tokenEnvelope struct {
	Data      json.RawMessage `json:"data"`
	ExpiresAt time.Time       `json:"expires_at,omitempty"`
}

// Sign marshals data to JSON, signs it with HMAC, and returns a base64-encoded token
func (ts *TokenSigner) Sign(v any) (string, error) {
	userData, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	envelope := tokenEnvelope{
		Data: userData,
	}
	if ts.ttl > 0 {
		envelope.ExpiresAt = time.Now().Add(ts.ttl)
	}

	jsonData, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token envelope: %w", err)
	}

	signature := SignData(string(jsonData), ts.signingKey)
	return fmt.Sprintf("%s.%s", base64.URLEncoding.EncodeToString(jsonData), signature), nil
}

// Verify validates the signature, checks expiry, and unmarshals the data
func (ts *TokenSigner) Verify(token string, v any) error {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return fmt.Errorf("invalid token format")
	}

	jsonData, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return fmt.Errorf("failed to decode token data: %w", err)
	}

	if !ValidateSignedData(string(jsonData), parts[1], ts.signingKey) {
		return fmt.Errorf("invalid signature")
	}

	var envelope tokenEnvelope
	if err := json.Unmarshal(jsonData, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal token envelope: %w", err)
	}

	if !envelope.ExpiresAt.IsZero() && time.Now().After(envelope.ExpiresAt) {
		return ErrTokenExpired
	}

	if err := json.Unmarshal(envelope.Data, v); err != nil {
		return fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	return nil
}
