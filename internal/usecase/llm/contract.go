package llm

import (
	"context"

	"github.com/exportdesk/ragcore/internal/domain"
)

// Backend is the consumer contract for inference providers. Adapters are
// interchangeable; the active one is chosen by configuration, never by type
// inspection.
type Backend interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
	Name() string
}
