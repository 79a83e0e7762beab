package server

import (
	"encoding/json"
	"net/http"

	jsonwriter "github.com/Dopaya1/dopaya-app-sub001/internal/json"
	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
	"github.com/Dopaya1/dopaya-app-sub001/internal/pending"
)

// OpsHandler serves the operator endpoints behind basic auth
type OpsHandler struct {
	store pending.Store
}

// NewOpsHandler creates the operator handler
func NewOpsHandler(store pending.Store) *OpsHandler {
	return &OpsHandler{store: store}
}

// StatusHandler reports service state: stored resume contexts and the
// active log level
func (h *OpsHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}

	count, err := h.store.Count(r.Context())
	if err != nil {
		log.LogErrorWithFields("ops", "Failed to count resume contexts", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Storage unavailable")
		return
	}

	jsonwriter.Write(w, map[string]any{
		"pendingContexts": count,
		"logLevel":        log.GetLogLevel(),
	})
}

// LogLevelHandler changes the log level at runtime
func (h *OpsHandler) LogLevelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := log.SetLogLevel(req.Level); err != nil {
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}

	log.LogInfoWithFields("ops", "Log level changed", map[string]any{
		"level": req.Level,
	})
	jsonwriter.Write(w, map[string]string{"logLevel": log.GetLogLevel()})
}
