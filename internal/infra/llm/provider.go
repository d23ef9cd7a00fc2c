// Package llm — Provider interface.
// Adapters (OpenAI, Anthropic, Google, Groq) implement this interface so the
// application is never coupled to a specific LLM vendor.
package llm

import "context"

// Provider is the model-agnostic interface for LLM operations.
// Adapters construct a configured client only; network I/O happens when
// ChatCompletion is invoked, always under the caller's context deadline.
type Provider interface {
	// ChatCompletion performs a non-streaming chat completion.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ModelInfo returns static metadata about the provider/model.
	ModelInfo() ModelMeta
}
