package impact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Account is the backend's view of a user's impact state. Read-only
// from this service's perspective except for the welcome-bonus call.
type Account struct {
	ImpactPoints      int  `json:"impactPoints"`
	ProjectsSupported int  `json:"projectsSupported"`
	WelcomeShown      bool `json:"welcome_shown"`
}

// PaymentIntentRequest describes a support checkout for the payment widget
type PaymentIntentRequest struct {
	Project string `json:"project"`
	Amount  int    `json:"amount"`
	Tip     int    `json:"tip"`
}

// PaymentIntentResponse carries the client secret the payment widget needs
type PaymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// Client talks to the impact backend
type Client struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
}

// NewClient creates a new impact backend client
func NewClient(baseURL, serviceToken string) *Client {
	return &Client{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// GetAccount fetches the impact account behind a user's access token
func (c *Client) GetAccount(ctx context.Context, accessToken string) (*Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/user/impact", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching impact account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("impact backend returned status %d", resp.StatusCode)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("decoding impact account: %w", err)
	}
	return &account, nil
}

// GrantWelcomeBonus asks the backend to credit the one-time welcome
// bonus. The endpoint is idempotent: repeated calls after the first
// successful credit are no-ops, so callers may retry freely.
func (c *Client) GrantWelcomeBonus(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/user/welcome-bonus", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling welcome-bonus: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("welcome-bonus returned status %d: %s", resp.StatusCode, body)
	}
	return nil
}

// CreatePaymentIntent provisions a payment for the external collection
// widget and returns its client secret
func (c *Client) CreatePaymentIntent(ctx context.Context, accessToken string, intent PaymentIntentRequest) (*PaymentIntentResponse, error) {
	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("marshaling payment intent: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/create-payment-intent", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("creating payment intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("create-payment-intent returned status %d", resp.StatusCode)
	}

	var out PaymentIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding payment intent: %w", err)
	}
	return &out, nil
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if c.serviceToken != "" {
		req.Header.Set("X-Service-Token", c.serviceToken)
	}
}
