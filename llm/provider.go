// Package llm provides the language-model and embedding collaborators used
// by the query path: an OpenAI-compatible chat client with client-side rate
// limiting, and embedding providers behind a small function type.
package llm

import "context"

// Provider generates a completion for a prompt. Implementations must honor
// ctx cancellation and return structured errors so callers can distinguish
// retryable collaborator failures from permanent ones.
type Provider interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// CompletionRequest is one chat completion call.
type CompletionRequest struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// CompletionResponse is the model's reply plus usage accounting.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	PromptTokens int    `json:"prompt_tokens"`
	TotalTokens  int    `json:"total_tokens"`
}

// EmbedFunc embeds one text into a vector. The retrieval gateway and the
// ingestion pipeline both depend on this shape rather than a full provider
// interface.
type EmbedFunc func(ctx context.Context, text string) ([]float64, error)
