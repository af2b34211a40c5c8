package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"

	errs "github.com/boglepay/gateway/internal/shared/errors"
)

// Event types delivered by BoglePay webhooks.
const (
	EventPaymentSucceeded  = "payment.succeeded"
	EventCheckoutCompleted = "checkout.completed"
	EventPaymentFailed     = "payment.failed"
	EventCheckoutFailed    = "checkout.failed"
	EventRefundCreated     = "refund.created"
	EventRefundSucceeded   = "refund.succeeded"
)

// WebhookEnvelope is the outer structure of every BoglePay webhook payload.
// Only specific keys of Data are ever read; the rest is carried opaquely.
type WebhookEnvelope struct {
	EventType string    `json:"event_type"`
	Data      EventData `json:"data"`
}

// EventData is the arbitrary nested payload of a webhook event.
type EventData map[string]any

// ParseEnvelope decodes a raw webhook payload.
func ParseEnvelope(payload []byte) (*WebhookEnvelope, error) {
	var env WebhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, err)
	}
	if env.Data == nil {
		env.Data = EventData{}
	}
	return &env, nil
}

// String returns the value for key as a string, or "" when absent or
// not a string.
func (d EventData) String(key string) string {
	if v, ok := d[key].(string); ok {
		return v
	}
	return ""
}

// Has reports whether the key is present at all.
func (d EventData) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// Int64 returns the value for key as an int64. JSON numbers arrive as
// float64; numeric strings are accepted as well.
func (d EventData) Int64(key string) (int64, bool) {
	return toInt64(d[key])
}

// CustomFields returns the nested custom_fields mapping, or an empty one.
func (d EventData) CustomFields() EventData {
	if m, ok := d["custom_fields"].(map[string]any); ok {
		return EventData(m)
	}
	return EventData{}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
