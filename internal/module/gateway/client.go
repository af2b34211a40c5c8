package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/boglepay/gateway/internal/shared/config"
	"github.com/boglepay/gateway/internal/shared/metrics"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const userAgent = "BoglePay-GatewayBridge/1.0"

// Checkout session statuses reported by the processor.
const (
	SessionStatusUnpaid    = "unpaid"
	SessionStatusPaid      = "paid"
	SessionStatusSucceeded = "succeeded"
	SessionStatusFailed    = "failed"
)

// CheckoutSession is the processor-side record of one payment attempt.
type CheckoutSession struct {
	ID            string         `json:"id"`
	PublicToken   string         `json:"public_token"`
	AmountCents   int64          `json:"amount_cents"`
	Currency      string         `json:"currency"`
	Description   string         `json:"description,omitempty"`
	Status        string         `json:"status"`
	TransactionID string         `json:"transaction_id,omitempty"`
	SuccessURL    string         `json:"success_url,omitempty"`
	CancelURL     string         `json:"cancel_url,omitempty"`
	CustomFields  map[string]any `json:"custom_fields,omitempty"`
	LineItems     []LineItem     `json:"line_items,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	ExpiresAt     *string        `json:"expires_at,omitempty"`
}

// IsPaid reports whether the session has been settled.
func (s *CheckoutSession) IsPaid() bool {
	return s.Status == SessionStatusPaid || s.Status == SessionStatusSucceeded
}

// LineItem is one line of a checkout session.
type LineItem struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	IsTaxExempt bool   `json:"is_tax_exempt,omitempty"`
}

// CheckoutSessionParams are the creation parameters for a session.
type CheckoutSessionParams struct {
	AmountCents          int64          `json:"amount_cents"`
	Currency             string         `json:"currency"`
	Description          string         `json:"description,omitempty"`
	SuccessURL           string         `json:"success_url,omitempty"`
	CancelURL            string         `json:"cancel_url,omitempty"`
	InvoiceCustomerEmail string         `json:"invoice_customer_email,omitempty"`
	InvoiceCustomerName  string         `json:"invoice_customer_name,omitempty"`
	LineItems            []LineItem     `json:"line_items,omitempty"`
	CustomFields         map[string]any `json:"custom_fields,omitempty"`
	ExpiresInMinutes     int            `json:"expires_in_minutes,omitempty"`
}

// ConfirmResult is the response of a session confirmation.
type ConfirmResult struct {
	Success     bool             `json:"success"`
	Session     *CheckoutSession `json:"session,omitempty"`
	Transaction *Transaction     `json:"transaction,omitempty"`
}

// Transaction is the settled payment reference.
type Transaction struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
}

// MerchantInfo describes the authenticated merchant account.
type MerchantInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
}

// APIError is a non-2xx response from the BoglePay API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("boglepay api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Client is the outbound BoglePay session API consumed by the bridge.
type Client interface {
	CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, idOrToken string) (*CheckoutSession, error)
	ConfirmCheckoutSession(ctx context.Context, idOrToken string, payment map[string]any, idempotencyKey string) (*ConfirmResult, error)
	GetMerchantInfo(ctx context.Context) (*MerchantInfo, error)
}

// HTTPClient implements Client against the BoglePay REST API. Requests
// run through a circuit breaker; API-level 4xx errors count as
// successful calls so a misbehaving payload cannot trip the breaker.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	sandbox    bool
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewHTTPClient creates a BoglePay API client.
func NewHTTPClient(cfg *config.BoglePayConfig, m *metrics.Metrics, logger *zap.Logger) *HTTPClient {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "boglepay-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		sandbox:    cfg.SandboxMode,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		metrics:    m,
		logger:     logger,
	}
}

// IsConfigured reports whether the client has an API URL and key.
func (c *HTTPClient) IsConfigured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// IsSandbox reports whether sandbox mode is enabled.
func (c *HTTPClient) IsSandbox() bool {
	return c.sandbox
}

// CreateCheckoutSession creates a hosted checkout session.
func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (*CheckoutSession, error) {
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("missing required field: amount_cents")
	}
	if params.Currency == "" {
		return nil, fmt.Errorf("missing required field: currency")
	}

	c.logger.Debug("creating checkout session",
		zap.Int64("amount_cents", params.AmountCents),
		zap.String("currency", params.Currency),
	)

	body, err := c.request(ctx, http.MethodPost, "/v1/checkout-sessions", "create_session", params, nil)
	if err != nil {
		return nil, err
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &session, nil
}

// GetCheckoutSession fetches a session by id or public token.
func (c *HTTPClient) GetCheckoutSession(ctx context.Context, idOrToken string) (*CheckoutSession, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/checkout-sessions/"+idOrToken, "get_session", nil, nil)
	if err != nil {
		return nil, err
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &session, nil
}

// ConfirmCheckoutSession confirms (processes) a session. The idempotency
// key makes a repeated confirmation with the same key a no-op on the
// processor side.
func (c *HTTPClient) ConfirmCheckoutSession(ctx context.Context, idOrToken string, payment map[string]any, idempotencyKey string) (*ConfirmResult, error) {
	headers := map[string]string{
		"Idempotency-Key": idempotencyKey,
	}

	body, err := c.request(ctx, http.MethodPost, "/v1/checkout-sessions/"+idOrToken+"/confirm", "confirm_session", payment, headers)
	if err != nil {
		return nil, err
	}

	var result ConfirmResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode confirm result: %w", err)
	}
	return &result, nil
}

// GetMerchantInfo fetches the merchant record for the configured key.
func (c *HTTPClient) GetMerchantInfo(ctx context.Context) (*MerchantInfo, error) {
	body, err := c.request(ctx, http.MethodGet, "/v1/me", "merchant_info", nil, nil)
	if err != nil {
		return nil, err
	}

	var info MerchantInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode merchant info: %w", err)
	}
	return &info, nil
}

// ValidateAPIKey checks the configured key against the merchant endpoint.
func (c *HTTPClient) ValidateAPIKey(ctx context.Context) error {
	info, err := c.GetMerchantInfo(ctx)
	if err != nil {
		return err
	}
	if info.ID == "" {
		return fmt.Errorf("invalid API response: missing merchant id")
	}
	return nil
}

// request performs one API call through the circuit breaker and decodes
// error responses into APIError.
func (c *HTTPClient) request(ctx context.Context, method, path, endpoint string, payload any, headers map[string]string) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var reqBody io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("encode request: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("User-Agent", userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.RecordOutboundRequest(endpoint, 0, time.Since(start))
			return nil, fmt.Errorf("boglepay request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		c.metrics.RecordOutboundRequest(endpoint, resp.StatusCode, time.Since(start))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			apiErr := &APIError{
				StatusCode: resp.StatusCode,
				Code:       "boglepay_api_error",
				Message:    "unknown API error",
			}
			// Error body is best-effort; fall back to the defaults
			_ = json.Unmarshal(body, apiErr)
			c.logger.Error("boglepay API error response",
				zap.Int("status_code", resp.StatusCode),
				zap.String("endpoint", endpoint),
				zap.String("code", apiErr.Code),
				zap.String("message", apiErr.Message),
			)
			return nil, apiErr
		}

		return body, nil
	})
}

// GenerateIdempotencyKey builds a unique idempotency key for an order action.
func GenerateIdempotencyKey(orderID uint64, action string) string {
	return fmt.Sprintf("order_%d_%s_%s", orderID, action, uuid.New())
}
