package ingest

import (
	"context"

	"github.com/exportdesk/ragcore/internal/domain"
)

// BatchEmbedder vectorizes document contents in bulk.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexWriter adds documents to the vector index.
type IndexWriter interface {
	Add(docs []domain.Document) error
}
