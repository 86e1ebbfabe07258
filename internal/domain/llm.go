package domain

import "context"

// CompletionRequest is the uniform request shape every inference backend accepts.
// Backend-specific framing (message roles, stop tokens) stays inside the adapter.
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	Model        string // empty = backend default
}

// CompletionResult carries the generated text and token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// CompletionBackend is the contract an inference provider adapter implements.
// Errors must be classified: transient failures wrap ErrTransient, credential
// failures wrap ErrAuth, unknown models wrap ErrUnsupportedModel.
type CompletionBackend interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	Name() string
}
