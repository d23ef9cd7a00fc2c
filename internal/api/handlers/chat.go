package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mkersic/relay/internal/domain/provider"
	"github.com/mkersic/relay/internal/infra/llm"
)

// ChatHandler serves the public stateless completion endpoint. Callers
// supply their own API keys per request; nothing is persisted.
type ChatHandler struct {
	registry *provider.Registry
	resolver *provider.Resolver
}

func NewChatHandler(registry *provider.Registry, resolver *provider.Resolver) *ChatHandler {
	return &ChatHandler{registry: registry, resolver: resolver}
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages    []ChatMessage     `json:"messages"`
	ProviderID  string            `json:"providerId"`
	APIKeys     map[string]string `json:"apiKeys"`
	Stream      bool              `json:"stream,omitempty"`
	MaxTokens   int               `json:"maxTokens,omitempty"`
	Temperature float32           `json:"temperature,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the non-streaming body of POST /api/chat.
type ChatResponse struct {
	Content    string    `json:"content"`
	StopReason string    `json:"stopReason,omitempty"`
	Provider   string    `json:"provider"`
	Usage      llm.Usage `json:"usage"`
}

// Chat handles POST /api/chat.
//
// Response codes:
//   - 200 OK: completion succeeded (SSE stream when stream=true)
//   - 400 Bad Request: invalid JSON, empty messages, missing providerId,
//     or credentials that fail validation for the provider
//   - 401 Unauthorized: the upstream rejected the API key
//   - 500 Internal Server Error: any other generation failure
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateChatRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.registry.ValidateCredentials(req.ProviderID, req.APIKeys) {
		writeError(w, http.StatusBadRequest, "missing or invalid API keys for provider")
		return
	}

	model, err := h.resolver.ResolveModel(req.ProviderID, req.APIKeys)
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	resp, err := model.ChatCompletion(r.Context(), llm.ChatRequest{
		Messages:    toLLMMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		writeGenerationError(w, err)
		return
	}

	if req.Stream {
		streamChatResponse(w, req.ProviderID, resp)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{
		Content:    resp.Content,
		StopReason: resp.StopReason,
		Provider:   req.ProviderID,
		Usage:      resp.Usage,
	})
}

func validateChatRequest(req ChatRequest) error {
	if len(req.Messages) == 0 {
		return errors.New("messages is required and must be non-empty")
	}
	for _, m := range req.Messages {
		if strings.TrimSpace(m.Content) == "" {
			return errors.New("message content must not be empty")
		}
	}
	if req.ProviderID == "" {
		return errors.New("providerId is required")
	}
	if len(req.APIKeys) == 0 {
		return errors.New("apiKeys is required")
	}
	return nil
}

func toLLMMessages(messages []ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// writeGenerationError maps resolution and upstream failures to HTTP codes.
// Upstream rejections that mention the API key become 401 so the client
// prompts for a new key instead of retrying.
func writeGenerationError(w http.ResponseWriter, err error) {
	var missing *provider.MissingCredentialError
	switch {
	case errors.Is(err, provider.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "unknown provider")
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, missing.Error())
	case errors.Is(err, provider.ErrUnsupportedCompany):
		writeError(w, http.StatusBadRequest, "unsupported provider company")
	case isAPIKeyError(err):
		writeError(w, http.StatusUnauthorized, "provider rejected the API key")
	default:
		writeError(w, http.StatusInternalServerError, "generation failed")
	}
}

func isAPIKeyError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "api key")
}

// sseChunk is one server-sent event in a streamed chat response.
type sseChunk struct {
	Delta    string     `json:"delta,omitempty"`
	Done     bool       `json:"done,omitempty"`
	Provider string     `json:"provider,omitempty"`
	Usage    *llm.Usage `json:"usage,omitempty"`
}

// streamChatResponse replays the completed response as SSE chunks. The
// upstream call is not streamed; this keeps the adapter contract small
// while giving clients the incremental rendering they expect.
func streamChatResponse(w http.ResponseWriter, providerID string, resp *llm.ChatResponse) {
	w.Header().Set(headerContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	bw := bufio.NewWriter(w)

	for _, delta := range splitForStreaming(resp.Content) {
		writeSSE(bw, flusher, sseChunk{Delta: delta})
	}
	writeSSE(bw, flusher, sseChunk{Done: true, Provider: providerID, Usage: &resp.Usage})
}

func writeSSE(bw *bufio.Writer, flusher http.Flusher, chunk sseChunk) {
	b, _ := json.Marshal(chunk)
	if _, err := fmt.Fprintf(bw, "data: %s\n\n", b); err != nil {
		return
	}
	_ = bw.Flush()
	flusher.Flush()
}

// splitForStreaming breaks content into word-boundary chunks of a few words
// each so the client renders progressively.
func splitForStreaming(content string) []string {
	const wordsPerChunk = 4
	words := strings.SplitAfter(content, " ")
	chunks := make([]string, 0, len(words)/wordsPerChunk+1)
	for i := 0; i < len(words); i += wordsPerChunk {
		end := i + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], ""))
	}
	return chunks
}
