// Package llm — Google Generative Language HTTP adapter.
// GoogleProvider calls the Gemini REST API using stdlib net/http.
// Endpoint used:
//   - POST /v1beta/models/{model}:generateContent — non-streaming completion
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultGoogleBaseURL is the production Generative Language API endpoint.
const DefaultGoogleBaseURL = "https://generativelanguage.googleapis.com"

// GoogleProvider implements Provider against the Gemini REST API.
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGoogleProvider creates a GoogleProvider with a 60s default timeout.
// baseURL defaults to DefaultGoogleBaseURL when empty.
func NewGoogleProvider(apiKey, model, baseURL string) *GoogleProvider {
	if baseURL == "" {
		baseURL = DefaultGoogleBaseURL
	}
	return &GoogleProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ─── internal Gemini JSON types ──────────────────────────────────────────────

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ─── Provider implementation ─────────────────────────────────────────────────

// ChatCompletion performs a non-streaming completion via generateContent.
// Gemini uses "model" for assistant turns and carries system text in
// systemInstruction rather than the contents array.
func (p *GoogleProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	greq := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			Temperature:     temperatureOrDefault(req),
			MaxOutputTokens: maxTokensOrDefault(req),
		},
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if greq.SystemInstruction == nil {
				greq.SystemInstruction = &geminiContent{}
			}
			greq.SystemInstruction.Parts = append(greq.SystemInstruction.Parts, geminiPart{Text: m.Content})
		case "assistant":
			greq.Contents = append(greq.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			greq.Contents = append(greq.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	body, err := json.Marshal(greq)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("google post: build request: %w", err)
	}
	httpReq.Header.Set(headerContentType, mimeJSON)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google post: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, googleStatusError(resp)
	}

	var gresp geminiResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&gresp); decodeErr != nil {
		return nil, fmt.Errorf("decode google response: %w", decodeErr)
	}
	if len(gresp.Candidates) == 0 {
		return nil, fmt.Errorf("google: response contained no candidates")
	}

	var text strings.Builder
	for _, part := range gresp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &ChatResponse{
		Content:    text.String(),
		StopReason: strings.ToLower(gresp.Candidates[0].FinishReason),
		Usage: Usage{
			PromptTokens:     gresp.UsageMetadata.PromptTokenCount,
			CompletionTokens: gresp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gresp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}

// ModelInfo returns static metadata for this provider/model.
func (p *GoogleProvider) ModelInfo() ModelMeta {
	return ModelMeta{
		ID:       p.model,
		Provider: "google",
		Version:  "v1beta",
	}
}

// googleStatusError converts a non-2xx response into an error carrying the
// API's message when the body parses, or the bare status otherwise.
func googleStatusError(resp *http.Response) error {
	var apiErr geminiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("google: status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
	return fmt.Errorf("google: status %d", resp.StatusCode)
}
