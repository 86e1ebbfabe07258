package retrieval

import (
	"context"

	"github.com/exportdesk/ragcore/internal/domain"
)

// Embedder vectorizes query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index serves similarity and metadata search.
type Index interface {
	Search(queryVec []float32, topK int, filters domain.Filters) ([]domain.Document, error)
	SearchByMetadata(filters domain.Filters) []domain.Document
}

// Ranker reorders candidates, applies trust boosts, and enforces the
// relevance floor.
type Ranker interface {
	Rank(docs []domain.Document, boostTrustedSources bool) []domain.Document
}
