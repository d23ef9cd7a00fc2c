// Package llm — OpenAI-compatible adapter.
// Backed by github.com/sashabaranov/go-openai. Groq exposes the same wire
// protocol, so the Groq adapter is this client pointed at Groq's base URL.
package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// GroqBaseURL is the OpenAI-compatible endpoint served by Groq.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIProvider implements Provider against an OpenAI-compatible API.
type OpenAIProvider struct {
	client   *openai.Client
	model    string
	provider string // "openai" or "groq", for ModelMeta
}

// NewOpenAIProvider creates an adapter for the OpenAI API.
// baseURL overrides the endpoint when non-empty (tests, proxies).
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	return newCompatProvider(apiKey, model, baseURL, "openai")
}

// NewGroqProvider creates an adapter for Groq's OpenAI-compatible API.
// baseURL defaults to GroqBaseURL when empty.
func NewGroqProvider(apiKey, model, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = GroqBaseURL
	}
	return newCompatProvider(apiKey, model, baseURL, "groq")
}

func newCompatProvider(apiKey, model, baseURL, provider string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		provider: provider,
	}
}

// ChatCompletion performs a non-streaming chat completion.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokensOrDefault(req),
		Temperature: temperatureOrDefault(req),
	})
	if err != nil {
		return nil, fmt.Errorf("%s chat: %w", p.provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s chat: response contained no choices", p.provider)
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// ModelInfo returns static metadata for this provider/model.
func (p *OpenAIProvider) ModelInfo() ModelMeta {
	return ModelMeta{
		ID:       p.model,
		Provider: p.provider,
		Version:  "v1",
	}
}
