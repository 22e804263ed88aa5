package llm

import (
	"context"
	"time"
)

// ChatRecorder counts completions for monitoring. Implemented by the
// metrics registry.
type ChatRecorder interface {
	RecordChatRequest(provider, model, status string, duration time.Duration)
	RecordChatTokens(provider, model string, inputTokens, outputTokens int64)
}

// InstrumentedProvider wraps a Provider and records request counts,
// latency, and token throughput per provider and model.
type InstrumentedProvider struct {
	inner Provider
	rec   ChatRecorder
}

// NewInstrumentedProvider wraps the given provider. A nil recorder returns
// the provider unwrapped.
func NewInstrumentedProvider(inner Provider, rec ChatRecorder) Provider {
	if rec == nil {
		return inner
	}
	return &InstrumentedProvider{inner: inner, rec: rec}
}

// Name returns the wrapped provider's name.
func (p *InstrumentedProvider) Name() string {
	return p.inner.Name()
}

// Chat executes the completion and records its outcome.
func (p *InstrumentedProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := p.inner.Chat(ctx, req)

	status := "success"
	if err != nil {
		status = "error"
	}
	p.rec.RecordChatRequest(p.inner.Name(), req.Model, status, time.Since(start))
	if resp != nil {
		p.rec.RecordChatTokens(p.inner.Name(), req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return resp, err
}

// Compile-time check
var _ Provider = (*InstrumentedProvider)(nil)
