package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Webhook metrics
	WebhookEventsTotal      *prometheus.CounterVec
	SignatureRejectionsTotal *prometheus.CounterVec

	// Outbound API metrics
	OutboundRequestsTotal   *prometheus.CounterVec
	OutboundRequestDuration *prometheus.HistogramVec

	// Checkout metrics
	CheckoutSessionsTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry.
func New(namespace string) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, namespace)
}

// NewWith creates a new Metrics instance registered on the given registerer.
// Tests use a fresh registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "boglepay"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Total number of webhook events by type and outcome",
			},
			[]string{"event_type", "outcome"}, // outcome: applied, noop, unresolved, unknown, malformed, error
		),
		SignatureRejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "signature_rejections_total",
				Help:      "Total number of rejected webhook signatures",
			},
			[]string{"reason"}, // missing, stale, mismatch
		),

		OutboundRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbound",
				Name:      "requests_total",
				Help:      "Total number of outbound BoglePay API requests",
			},
			[]string{"endpoint", "status"},
		),
		OutboundRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outbound",
				Name:      "request_duration_seconds",
				Help:      "Outbound BoglePay API request duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),

		CheckoutSessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "sessions_total",
				Help:      "Total number of checkout session creations",
			},
			[]string{"result"}, // created, failed
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebhookEvent records a processed webhook event.
func (m *Metrics) RecordWebhookEvent(eventType, outcome string) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordSignatureRejection records a rejected webhook signature.
func (m *Metrics) RecordSignatureRejection(reason string) {
	m.SignatureRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordOutboundRequest records an outbound API request.
func (m *Metrics) RecordOutboundRequest(endpoint string, status int, duration time.Duration) {
	m.OutboundRequestsTotal.WithLabelValues(endpoint, statusCodeToString(status)).Inc()
	m.OutboundRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCheckoutSession records a checkout session creation attempt.
func (m *Metrics) RecordCheckoutSession(result string) {
	m.CheckoutSessionsTotal.WithLabelValues(result).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
