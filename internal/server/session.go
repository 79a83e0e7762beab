package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Dopaya1/dopaya-app-sub001/internal/authapi"
	"github.com/Dopaya1/dopaya-app-sub001/internal/cookie"
	"github.com/Dopaya1/dopaya-app-sub001/internal/crypto"
)

// encodeSessionCookie seals a session into the encrypted cookie value
func encodeSessionCookie(encryptor crypto.Encryptor, session *authapi.Session) (string, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}
	return encryptor.Encrypt(string(payload))
}

// sessionFromRequest recovers the session behind the session cookie.
// A missing, undecryptable or malformed cookie yields nil; staleness is
// the caller's problem since only the auth service can tell.
func sessionFromRequest(r *http.Request, encryptor crypto.Encryptor) *authapi.Session {
	value, err := cookie.GetSession(r)
	if err != nil {
		return nil
	}
	decrypted, err := encryptor.Decrypt(value)
	if err != nil {
		return nil
	}
	var session authapi.Session
	if err := json.Unmarshal([]byte(decrypted), &session); err != nil {
		return nil
	}
	return &session
}
