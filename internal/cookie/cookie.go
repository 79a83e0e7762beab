package cookie

import (
	"net/http"
	"time"

	"github.com/Dopaya1/dopaya-app-sub001/internal/envutil"
	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
)

// Cookie names used by the resume flow
const (
	// SessionCookie carries the encrypted auth session
	SessionCookie = "dopaya_session"
	// JourneyCookie carries the resume journey identifier. Deliberately
	// per-tab in spirit: a new journey ID is minted whenever a support
	// flow starts, so overlapping tabs don't clobber each other's
	// pending action.
	JourneyCookie = "dopaya_journey"
)

// SetSession sets the session cookie with appropriate security settings
func SetSession(w http.ResponseWriter, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Session cookie set", map[string]any{
		"maxAge":   maxAge.String(),
		"secure":   secure,
		"sameSite": "Lax",
	})
}

// SetJourney sets the journey cookie. SameSite must be Lax so the cookie
// survives the top-level redirect back from the identity provider.
func SetJourney(w http.ResponseWriter, journeyID string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     JourneyCookie,
		Value:    journeyID,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}

// ClearSession removes the session cookie
func ClearSession(w http.ResponseWriter) {
	Clear(w, SessionCookie)
	log.LogTraceWithFields("cookie", "Session cookie cleared", nil)
}

// ClearJourney removes the journey cookie
func ClearJourney(w http.ResponseWriter) {
	Clear(w, JourneyCookie)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

// GetSession retrieves the session cookie value
func GetSession(r *http.Request) (string, error) {
	return Get(r, SessionCookie)
}

// GetJourney retrieves the journey cookie value
func GetJourney(r *http.Request) (string, error) {
	return Get(r, JourneyCookie)
}
