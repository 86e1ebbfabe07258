package embedding

import (
	"context"

	"github.com/exportdesk/ragcore/internal/domain"
)

// Provider vectorizes text via an external model API.
type Provider interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
