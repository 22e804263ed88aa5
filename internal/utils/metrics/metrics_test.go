package metrics

import (
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// createTestMetrics creates metrics with a custom registry for testing.
// This avoids conflicts with the default registry.
func createTestMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "test"
	}

	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ChatRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "requests_total",
				Help:      "Total number of chat completions",
			},
			[]string{"provider", "model", "status"},
		),
		ChatRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "request_duration_seconds",
				Help:      "Chat completion duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		ChatTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "tokens_total",
				Help:      "Total number of tokens processed",
			},
			[]string{"provider", "model", "type"},
		),
		ChatFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "fallbacks_total",
				Help:      "Total number of zero-cost fallback responses served",
			},
			[]string{"model"},
		),
		TokensCreditedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "tokens_credited_total",
				Help:      "Total tokens credited to balances",
			},
			[]string{"source"},
		),
		TokensDebitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "tokens_debited_total",
				Help:      "Total tokens debited from balances",
			},
		),
		DebitsClampedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "debits_clamped_total",
				Help:      "Debits that floored the balance at zero",
			},
		),
		PurchasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "purchase",
				Name:      "purchases_total",
				Help:      "Total number of token purchases",
			},
			[]string{"currency", "tier", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ChatRequestsTotal,
		m.ChatRequestDuration,
		m.ChatTokensTotal,
		m.ChatFallbacksTotal,
		m.TokensCreditedTotal,
		m.TokensDebitedTotal,
		m.DebitsClampedTotal,
		m.PurchasesTotal,
	)

	return m
}

func TestNew(t *testing.T) {
	t.Run("creates with custom namespace", func(t *testing.T) {
		// Note: New registers with the prometheus default registry, so it
		// needs a namespace unique to this process.
		m := New("test_new")
		assert.NotNil(t, m)
		assert.NotNil(t, m.HTTPRequestsTotal)
		assert.NotNil(t, m.HTTPRequestDuration)
		assert.NotNil(t, m.HTTPRequestsInFlight)
		assert.NotNil(t, m.ChatRequestsTotal)
		assert.NotNil(t, m.ChatRequestDuration)
		assert.NotNil(t, m.ChatTokensTotal)
		assert.NotNil(t, m.ChatFallbacksTotal)
		assert.NotNil(t, m.TokensCreditedTotal)
		assert.NotNil(t, m.TokensDebitedTotal)
		assert.NotNil(t, m.DebitsClampedTotal)
		assert.NotNil(t, m.PurchasesTotal)
	})
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m := createTestMetrics("http_test")

	t.Run("records request with 2xx status", func(t *testing.T) {
		m.RecordHTTPRequest("GET", "/api/conversations", 200, 100*time.Millisecond)

		count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/conversations", "2xx"))
		assert.Equal(t, float64(1), count)
	})

	t.Run("records request with 4xx status", func(t *testing.T) {
		m.RecordHTTPRequest("POST", "/api/chat/message", 402, 50*time.Millisecond)

		count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/chat/message", "4xx"))
		assert.Equal(t, float64(1), count)
	})

	t.Run("records request with 5xx status", func(t *testing.T) {
		m.RecordHTTPRequest("PUT", "/api/profile", 500, 200*time.Millisecond)

		count := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("PUT", "/api/profile", "5xx"))
		assert.Equal(t, float64(1), count)
	})
}

func TestMetrics_RecordChatRequest(t *testing.T) {
	m := createTestMetrics("chat_test")

	t.Run("records successful completion", func(t *testing.T) {
		m.RecordChatRequest("openai", "gpt-4o", "success", 2*time.Second)

		count := testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("openai", "gpt-4o", "success"))
		assert.Equal(t, float64(1), count)
	})

	t.Run("records failed completion", func(t *testing.T) {
		m.RecordChatRequest("anthropic", "claude-opus-4", "error", 500*time.Millisecond)

		count := testutil.ToFloat64(m.ChatRequestsTotal.WithLabelValues("anthropic", "claude-opus-4", "error"))
		assert.Equal(t, float64(1), count)
	})
}

func TestMetrics_RecordChatTokens(t *testing.T) {
	m := createTestMetrics("tokens_test")

	t.Run("records input and output tokens", func(t *testing.T) {
		m.RecordChatTokens("openai", "gpt-4o", 100, 50)

		inputCount := testutil.ToFloat64(m.ChatTokensTotal.WithLabelValues("openai", "gpt-4o", "input"))
		outputCount := testutil.ToFloat64(m.ChatTokensTotal.WithLabelValues("openai", "gpt-4o", "output"))

		assert.Equal(t, float64(100), inputCount)
		assert.Equal(t, float64(50), outputCount)
	})

	t.Run("skips zero tokens", func(t *testing.T) {
		m.RecordChatTokens("openai", "gpt-4o-mini", 0, 0)

		inputCount := testutil.ToFloat64(m.ChatTokensTotal.WithLabelValues("openai", "gpt-4o-mini", "input"))
		outputCount := testutil.ToFloat64(m.ChatTokensTotal.WithLabelValues("openai", "gpt-4o-mini", "output"))

		assert.Equal(t, float64(0), inputCount)
		assert.Equal(t, float64(0), outputCount)
	})
}

func TestMetrics_RecordLedger(t *testing.T) {
	m := createTestMetrics("ledger_test")

	t.Run("records credit by source", func(t *testing.T) {
		m.RecordCredit("purchase", 500000)
		m.RecordCredit("welcome", 50000)

		assert.Equal(t, float64(500000), testutil.ToFloat64(m.TokensCreditedTotal.WithLabelValues("purchase")))
		assert.Equal(t, float64(50000), testutil.ToFloat64(m.TokensCreditedTotal.WithLabelValues("welcome")))
	})

	t.Run("records debit and clamp", func(t *testing.T) {
		m.RecordDebit(100, false)
		m.RecordDebit(30, true)

		assert.Equal(t, float64(130), testutil.ToFloat64(m.TokensDebitedTotal))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.DebitsClampedTotal))
	})
}

func TestMetrics_RecordPurchase(t *testing.T) {
	m := createTestMetrics("purchase_test")

	m.RecordPurchase("USD", "Power User", "completed")

	count := testutil.ToFloat64(m.PurchasesTotal.WithLabelValues("USD", "Power User", "completed"))
	assert.Equal(t, float64(1), count)
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{299, "2xx"},
		{300, "3xx"},
		{399, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{499, "4xx"},
		{500, "5xx"},
		{502, "5xx"},
		{599, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			result := statusCodeToString(tt.code)
			assert.Equal(t, tt.expected, result)
		})
	}
}
