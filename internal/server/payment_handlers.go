package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Dopaya1/dopaya-app-sub001/internal/crypto"
	"github.com/Dopaya1/dopaya-app-sub001/internal/impact"
	jsonwriter "github.com/Dopaya1/dopaya-app-sub001/internal/json"
	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
)

// PaymentCreator provisions payments on the impact backend
type PaymentCreator interface {
	CreatePaymentIntent(ctx context.Context, accessToken string, intent impact.PaymentIntentRequest) (*impact.PaymentIntentResponse, error)
}

// PaymentHandler proxies payment-intent creation so the checkout page
// can re-arm the payment widget after a resume without handling backend
// credentials itself.
type PaymentHandler struct {
	payments         PaymentCreator
	sessionEncryptor crypto.Encryptor
}

// NewPaymentHandler creates the payment-intent proxy handler
func NewPaymentHandler(payments PaymentCreator, sessionEncryptor crypto.Encryptor) *PaymentHandler {
	return &PaymentHandler{
		payments:         payments,
		sessionEncryptor: sessionEncryptor,
	}
}

// ServeHTTP handles POST /support/payment-intent
func (h *PaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	session := sessionFromRequest(r, h.sessionEncryptor)
	if session == nil {
		jsonwriter.WriteUnauthorized(w, "Sign in to support a project")
		return
	}

	var req impact.PaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Project == "" || req.Amount <= 0 {
		jsonwriter.WriteBadRequest(w, "project and a positive amount are required")
		return
	}

	out, err := h.payments.CreatePaymentIntent(r.Context(), session.AccessToken, req)
	if err != nil {
		log.LogErrorWithFields("server", "Payment intent creation failed", map[string]any{
			"project": req.Project,
			"error":   err.Error(),
		})
		jsonwriter.WriteServiceUnavailable(w, "Payment service unavailable")
		return
	}

	jsonwriter.Write(w, out)
}
