package providers

import "context"

// Provider is the interface all LLM providers must implement.
// Herald uses providers for two things only: topic classification
// (structured judgement) and draft generation/editing (free text).
type Provider interface {
	// Complete sends a prompt to the LLM and returns the text response.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// DefaultModel returns the provider's default model name.
	DefaultModel() string

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// CompletionRequest contains the input for a Complete call.
type CompletionRequest struct {
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Model     string    `json:"model,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Completion is the result from an LLM call.
type Completion struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"` // "stop", "length"
	Usage        *Usage `json:"usage,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UserMessage is a convenience constructor for single-turn requests.
func UserMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}
