package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
	defaultMaxTokens        = 4096
)

// AnthropicProvider implements Provider against the Anthropic messages API.
type AnthropicProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// AnthropicConfig holds Anthropic provider configuration.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// NewAnthropicProvider creates a new Anthropic provider with the given HTTP client.
func NewAnthropicProvider(client *http.Client, cfg *AnthropicConfig) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		client:  client,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Chat performs a non-streaming chat completion.
func (p *AnthropicProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	// Anthropic takes the system prompt as a top-level field, not a message.
	var system string
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		messages = append(messages, m)
	}

	body := map[string]any{
		"model":      req.Model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if system != "" {
		body["system"] = system
	}

	respBody, err := p.doRequest(ctx, "/messages", body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var anthropicResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
		Usage struct {
			InputTokens  int64 `json:"input_tokens"`
			OutputTokens int64 `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(respBody).Decode(&anthropicResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}

	var text string
	for _, c := range anthropicResp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	return &Response{
		Text: text,
		Usage: Usage{
			InputTokens:  anthropicResp.Usage.InputTokens,
			OutputTokens: anthropicResp.Usage.OutputTokens,
		},
	}, nil
}

// doRequest performs an HTTP request to the Anthropic API.
func (p *AnthropicProvider) doRequest(ctx context.Context, path string, body map[string]any) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, string(respBody))
	}
	return resp.Body, nil
}

// Compile-time interface assertion
var _ Provider = (*AnthropicProvider)(nil)
