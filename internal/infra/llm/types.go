// Package llm defines the model-agnostic LLM provider abstraction.
// All types here are shared between the provider interface and adapters.
package llm

// Defaults applied by adapters when the request leaves them zero.
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = float32(0.7)
)

// Message represents a single turn in a conversation (role + content).
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is the input for a chat completion.
type ChatRequest struct {
	// Model overrides the provider default when non-empty.
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is the output from a chat completion.
type ChatResponse struct {
	Content    string // The assistant message text.
	StopReason string // e.g. "stop" | "length" | "max_tokens"
	Usage      Usage
}

// ModelMeta describes the model / provider identity.
type ModelMeta struct {
	ID       string // e.g. "gpt-4o", "claude-3-5-sonnet-20241022"
	Provider string // e.g. "openai", "anthropic", "google", "groq"
	Version  string
}

// maxTokensOrDefault returns req.MaxTokens or the shared default.
func maxTokensOrDefault(req ChatRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}

// temperatureOrDefault returns req.Temperature or the shared default.
func temperatureOrDefault(req ChatRequest) float32 {
	if req.Temperature > 0 {
		return req.Temperature
	}
	return DefaultTemperature
}
