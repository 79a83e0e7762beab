package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecureToken(t *testing.T) {
	token1, err := GenerateSecureToken()
	require.NoError(t, err)
	token2, err := GenerateSecureToken()
	require.NoError(t, err)

	assert.NotEmpty(t, token1)
	assert.NotEqual(t, token1, token2, "tokens should be unique")
}

func TestSignData(t *testing.T) {
	key := []byte("test-signing-key")

	signature := SignData("hello", key)
	assert.True(t, ValidateSignedData("hello", signature, key))

	t.Run("rejects tampered data", func(t *testing.T) {
		assert.False(t, ValidateSignedData("hello!", signature, key))
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		assert.False(t, ValidateSignedData("hello", signature, []byte("other-key")))
	})

	t.Run("rejects garbage signature", func(t *testing.T) {
		assert.False(t, ValidateSignedData("hello", "not-base64!!!", key))
	})
}

func TestTokenSignerRoundTrip(t *testing.T) {
	signer := NewTokenSigner([]byte("signing-key"), time.Minute)

	type payload struct {
		Nonce     string `json:"nonce"`
		ReturnURL string `json:"return_url"`
	}

	token, err := signer.Sign(payload{Nonce: "abc", ReturnURL: "/support/ignis-careers"})
	require.NoError(t, err)

	var got payload
	require.NoError(t, signer.Verify(token, &got))
	assert.Equal(t, "abc", got.Nonce)
	assert.Equal(t, "/support/ignis-careers", got.ReturnURL)
}

func TestTokenSignerRejectsTampering(t *testing.T) {
	signer := NewTokenSigner([]byte("signing-key"), time.Minute)

	token, err := signer.Sign(map[string]string{"k": "v"})
	require.NoError(t, err)

	var got map[string]string
	err = signer.Verify(token+"x", &got)
	assert.Error(t, err)

	other := NewTokenSigner([]byte("different-key"), time.Minute)
	err = other.Verify(token, &got)
	assert.Error(t, err)
}

func TestTokenSignerExpiry(t *testing.T) {
	signer := NewTokenSigner([]byte("signing-key"), -time.Second)

	token, err := signer.Sign(map[string]string{"k": "v"})
	require.NoError(t, err)

	var got map[string]string
	err = signer.Verify(token, &got)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAESEncryptorRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	enc, err := NewAESEncryptor(key)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt(`{"email":"user@example.com"}`)
	require.NoError(t, err)
	assert.NotContains(t, ciphertext, "user@example.com")

	plaintext, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, `{"email":"user@example.com"}`, plaintext)
}

func TestAESEncryptorRejectsBadKey(t *testing.T) {
	_, err := NewAESEncryptor([]byte("too-short"))
	assert.Error(t, err)
}

func TestAESEncryptorRejectsTamperedCiphertext(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	enc, err := NewAESEncryptor(key)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt("secret")
	require.NoError(t, err)

	flipped := "A"
	if ciphertext[0] == 'A' {
		flipped = "B"
	}
	_, err = enc.Decrypt(flipped + ciphertext[1:])
	assert.Error(t, err)
}
