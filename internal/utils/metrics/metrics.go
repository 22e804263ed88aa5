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

	// Chat / LLM metrics
	ChatRequestsTotal   *prometheus.CounterVec
	ChatRequestDuration *prometheus.HistogramVec
	ChatTokensTotal     *prometheus.CounterVec
	ChatFallbacksTotal  *prometheus.CounterVec

	// Ledger metrics
	TokensCreditedTotal *prometheus.CounterVec
	TokensDebitedTotal  prometheus.Counter
	DebitsClampedTotal  prometheus.Counter

	// Purchase metrics
	PurchasesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "chatforge"
	}

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Chat / LLM metrics
		ChatRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "requests_total",
				Help:      "Total number of chat completions",
			},
			[]string{"provider", "model", "status"},
		),
		ChatRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "request_duration_seconds",
				Help:      "Chat completion duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		ChatTokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "tokens_total",
				Help:      "Total number of tokens processed",
			},
			[]string{"provider", "model", "type"}, // type: input, output
		),
		ChatFallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "fallbacks_total",
				Help:      "Total number of zero-cost fallback responses served",
			},
			[]string{"model"},
		),

		// Ledger metrics
		TokensCreditedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "tokens_credited_total",
				Help:      "Total tokens credited to balances",
			},
			[]string{"source"}, // purchase, welcome, admin
		),
		TokensDebitedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "tokens_debited_total",
				Help:      "Total tokens debited from balances",
			},
		),
		DebitsClampedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "debits_clamped_total",
				Help:      "Debits that floored the balance at zero",
			},
		),

		// Purchase metrics
		PurchasesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "purchase",
				Name:      "purchases_total",
				Help:      "Total number of token purchases",
			},
			[]string{"currency", "tier", "status"},
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

// RecordChatRequest records a chat completion.
func (m *Metrics) RecordChatRequest(provider, model, status string, duration time.Duration) {
	m.ChatRequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.ChatRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordChatTokens records token usage.
func (m *Metrics) RecordChatTokens(provider, model string, inputTokens, outputTokens int64) {
	if inputTokens > 0 {
		m.ChatTokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.ChatTokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordChatFallback records a zero-cost fallback response.
func (m *Metrics) RecordChatFallback(model string) {
	m.ChatFallbacksTotal.WithLabelValues(model).Inc()
}

// RecordCredit records a ledger credit.
func (m *Metrics) RecordCredit(source string, tokens int64) {
	m.TokensCreditedTotal.WithLabelValues(source).Add(float64(tokens))
}

// RecordDebit records a ledger debit.
func (m *Metrics) RecordDebit(tokens int64, clamped bool) {
	m.TokensDebitedTotal.Add(float64(tokens))
	if clamped {
		m.DebitsClampedTotal.Inc()
	}
}

// RecordPurchase records a token purchase.
func (m *Metrics) RecordPurchase(currency, tier, status string) {
	m.PurchasesTotal.WithLabelValues(currency, tier, status).Inc()
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
