package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch signals a vector dimension mismatch on add or search.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIndexNotInitialized signals a search against an index with no dimension set.
	ErrIndexNotInitialized = errors.New("index not initialized")
	// ErrIndexArtifactMissing signals that one of the two index files is absent.
	ErrIndexArtifactMissing = errors.New("index artifact missing")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrLLMProvider signals an inference provider failure.
	ErrLLMProvider = errors.New("llm provider error")
	// ErrTransient marks failures eligible for retry (timeouts, resets, 5xx,
	// provider-side throttling).
	ErrTransient = errors.New("transient failure")
	// ErrAuth signals invalid provider credentials. Never retried.
	ErrAuth = errors.New("authentication failed")
	// ErrUnsupportedModel signals an unknown model name. Never retried.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrRateLimited signals the local sliding-window ceiling was hit. Never retried.
	ErrRateLimited = errors.New("rate limited")
	// ErrMalformedStructuredOutput signals model output that does not conform
	// to the requested schema.
	ErrMalformedStructuredOutput = errors.New("malformed structured output")
)

// RateLimitedError wraps ErrRateLimited with the wait until the window rolls.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// NewRateLimited creates a rate limit error carrying the wait time.
func NewRateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// StructuredOutputError wraps ErrMalformedStructuredOutput with the parse
// failure reason and the raw model output.
type StructuredOutputError struct {
	Reason string
	Raw    string
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedStructuredOutput.Error(), e.Reason)
}

func (e *StructuredOutputError) Unwrap() error { return ErrMalformedStructuredOutput }

// NewStructuredOutputError creates a structured output error.
func NewStructuredOutputError(reason, raw string) error {
	return &StructuredOutputError{Reason: reason, Raw: raw}
}

// IsTransient reports whether err is eligible for retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
