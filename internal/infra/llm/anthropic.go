// Package llm — Anthropic HTTP adapter.
// AnthropicProvider calls the Anthropic Messages API using stdlib net/http.
// Endpoint used:
//   - POST /v1/messages — non-streaming chat completion
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultAnthropicBaseURL is the production Anthropic API endpoint.
	DefaultAnthropicBaseURL = "https://api.anthropic.com"

	anthropicAPIVersion = "2023-06-01"

	mimeJSON          = "application/json"
	headerContentType = "Content-Type"
)

// AnthropicProvider implements Provider against the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewAnthropicProvider creates an AnthropicProvider with a 60s default timeout.
// baseURL defaults to DefaultAnthropicBaseURL when empty.
func NewAnthropicProvider(apiKey, model, baseURL string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ─── internal Anthropic JSON types ───────────────────────────────────────────

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicChatResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ─── Provider implementation ─────────────────────────────────────────────────

// ChatCompletion performs a non-streaming chat via POST /v1/messages.
// System turns are lifted into the dedicated "system" field; the Messages API
// rejects them inside the messages array.
func (p *AnthropicProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	system, msgs := splitSystem(req.Messages)

	body, err := json.Marshal(anthropicChatRequest{
		Model:       model,
		System:      system,
		Messages:    msgs,
		MaxTokens:   maxTokensOrDefault(req),
		Temperature: temperatureOrDefault(req),
	})
	if err != nil {
		return nil, err
	}

	respBody, postErr := p.doPost(ctx, "/v1/messages", body)
	if postErr != nil {
		return nil, postErr
	}
	defer respBody.Close()

	var chatResp anthropicChatResponse
	if decodeErr := json.NewDecoder(respBody).Decode(&chatResp); decodeErr != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", decodeErr)
	}

	var text strings.Builder
	for _, block := range chatResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &ChatResponse{
		Content:    text.String(),
		StopReason: chatResp.StopReason,
		Usage: Usage{
			PromptTokens:     chatResp.Usage.InputTokens,
			CompletionTokens: chatResp.Usage.OutputTokens,
			TotalTokens:      chatResp.Usage.InputTokens + chatResp.Usage.OutputTokens,
		},
	}, nil
}

// splitSystem separates system turns from the conversational turns.
// Multiple system turns are concatenated in order.
func splitSystem(messages []Message) (string, []anthropicMessage) {
	var system strings.Builder
	msgs := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
			continue
		}
		msgs = append(msgs, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	return system.String(), msgs
}

// ModelInfo returns static metadata for this provider/model.
func (p *AnthropicProvider) ModelInfo() ModelMeta {
	return ModelMeta{
		ID:       p.model,
		Provider: "anthropic",
		Version:  anthropicAPIVersion,
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// doPost sends a POST request to baseURL+path and returns the response body.
// Caller is responsible for closing the returned ReadCloser.
func (p *AnthropicProvider) doPost(ctx context.Context, path string, body []byte) (io.ReadCloser, error) {
	url := p.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic post %s: build request: %w", path, err)
	}
	req.Header.Set(headerContentType, mimeJSON)
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic post %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close() //nolint:errcheck
		return nil, anthropicStatusError(resp)
	}
	return resp.Body, nil
}

// anthropicStatusError converts a non-2xx response into an error carrying the
// API's message when the body parses, or the bare status otherwise.
func anthropicStatusError(resp *http.Response) error {
	var apiErr anthropicErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("anthropic: status %d", resp.StatusCode)
}
