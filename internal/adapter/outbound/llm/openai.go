package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements Provider against the OpenAI chat completions
// API.
type OpenAIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// OpenAIConfig holds OpenAI provider configuration.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// NewOpenAIProvider creates a new OpenAI provider with the given HTTP client.
func NewOpenAIProvider(client *http.Client, cfg *OpenAIConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		client:  client,
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Chat performs a non-streaming chat completion.
func (p *OpenAIProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	body := map[string]any{
		"model":    req.Model,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}

	respBody, err := p.doRequest(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	var openaiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(respBody).Decode(&openaiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	if len(openaiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", ErrProvider)
	}

	resp := &Response{Text: openaiResp.Choices[0].Message.Content}
	if openaiResp.Usage != nil {
		resp.Usage = Usage{
			InputTokens:  openaiResp.Usage.PromptTokens,
			OutputTokens: openaiResp.Usage.CompletionTokens,
		}
	}
	return resp, nil
}

// doRequest performs an HTTP request to the OpenAI API.
func (p *OpenAIProvider) doRequest(ctx context.Context, path string, body map[string]any) (io.ReadCloser, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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
var _ Provider = (*OpenAIProvider)(nil)
