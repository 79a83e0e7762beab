package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Dopaya1/dopaya-app-sub001/internal/config"
	"github.com/Dopaya1/dopaya-app-sub001/internal/pending"
)

func opsConfigForTest(t *testing.T, password string) *config.OpsConfig {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &config.OpsConfig{
		Username:       "ops",
		HashedPassword: config.Secret(hashed),
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestOpsAuthMiddlewareAcceptsValidCredentials(t *testing.T) {
	mw := NewOpsAuthMiddleware(opsConfigForTest(t, "s3cret"))
	handler := mw(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/ops/status", nil)
	req.SetBasicAuth("ops", "s3cret")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpsAuthMiddlewareRejects(t *testing.T) {
	mw := NewOpsAuthMiddleware(opsConfigForTest(t, "s3cret"))
	handler := mw(okHandler())

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"no header", func(r *http.Request) {}},
		{"wrong password", func(r *http.Request) { r.SetBasicAuth("ops", "nope") }},
		{"wrong username", func(r *http.Request) { r.SetBasicAuth("root", "s3cret") }},
		{"bearer instead of basic", func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ops/status", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	mw := NewRecoverMiddleware("test")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string
	mk := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	// last middleware in the list is outermost
	handler := ChainMiddleware(okHandler(), mk("inner"), mk("outer"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestOpsStatusHandler(t *testing.T) {
	store := pending.NewMemoryStore()
	h := NewOpsHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/ops/status", nil)
	rec := httptest.NewRecorder()

	h.StatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pendingContexts")
	assert.Contains(t, rec.Body.String(), "logLevel")
}

func TestOpsLogLevelHandler(t *testing.T) {
	h := NewOpsHandler(pending.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/ops/log-level", strings.NewReader(`{"level":"debug"}`))
	rec := httptest.NewRecorder()

	h.LogLevelHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "debug")
}

func TestOpsLogLevelHandlerRejectsUnknownLevel(t *testing.T) {
	h := NewOpsHandler(pending.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/ops/log-level", strings.NewReader(`{"level":"shout"}`))
	rec := httptest.NewRecorder()

	h.LogLevelHandler(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
