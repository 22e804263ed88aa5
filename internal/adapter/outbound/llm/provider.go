package llm

import (
	"context"
	"errors"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a non-streaming chat completion request.
type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// Usage is the provider-reported token count for one completion.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is a completed generation.
type Response struct {
	Text  string
	Usage Usage
}

// Provider performs chat completions against one LLM vendor.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// ErrProvider wraps any vendor-side failure: HTTP errors, timeouts,
// malformed responses, and open circuit breakers. Callers treat all of
// them the same way: no debit, fallback message.
var ErrProvider = errors.New("llm provider error")
