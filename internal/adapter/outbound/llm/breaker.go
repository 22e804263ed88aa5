package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds circuit breaker settings for one provider.
type BreakerConfig struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the default breaker settings.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
	}
}

// BreakerProvider wraps a Provider with a circuit breaker so a degraded
// vendor fails fast instead of queueing requests behind timeouts.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[*Response]
}

// NewBreakerProvider wraps the given provider.
func NewBreakerProvider(inner Provider, cfg *BreakerConfig) *BreakerProvider {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*Response](settings),
	}
}

// Name returns the wrapped provider's name.
func (p *BreakerProvider) Name() string {
	return p.inner.Name()
}

// Chat executes the completion through the circuit breaker. An open
// circuit surfaces as ErrProvider like any other vendor failure.
func (p *BreakerProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	resp, err := p.breaker.Execute(func() (*Response, error) {
		return p.inner.Chat(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: circuit open for %s", ErrProvider, p.inner.Name())
		}
		return nil, err
	}
	return resp, nil
}

// Compile-time check
var _ Provider = (*BreakerProvider)(nil)
