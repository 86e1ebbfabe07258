// Package ingest embeds incoming (content, metadata) records and adds them to
// the vector index, with per-item error reporting.
package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
)

// MaxBatchSize is the default maximum number of records per ingestion call.
const MaxBatchSize = 100

// ItemStatus is the processing outcome of a single record.
type ItemStatus string

// Record status values.
const (
	StatusOK    ItemStatus = "ok"
	StatusError ItemStatus = "error"
)

// Record is an incoming document before embedding. ID may be empty; one is
// derived from the content when absent, so re-ingesting the same text replaces
// the existing document instead of duplicating it.
type Record struct {
	ID       string
	Content  string
	Metadata domain.Metadata
}

// Result is the outcome of ingesting one record.
type Result struct {
	ID     string
	Status ItemStatus
	Err    error
}

// ErrEmptyContent rejects records with nothing to embed.
var ErrEmptyContent = errors.New("empty content")

// Service ingests records into the index.
type Service struct {
	embedder     BatchEmbedder
	index        IndexWriter
	maxBatchSize int
	logger       *zap.Logger
}

// New creates an ingestion service.
func New(embedder BatchEmbedder, index IndexWriter, logger *zap.Logger) *Service {
	return &Service{
		embedder:     embedder,
		index:        index,
		maxBatchSize: MaxBatchSize,
		logger:       logger,
	}
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Ingest embeds record contents in bulk and adds the resulting documents to
// the index. Records with empty content fail individually; an embedding or
// index failure fails the whole batch.
func (s *Service) Ingest(ctx context.Context, records []Record) ([]Result, error) {
	if len(records) > s.maxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds %d", len(records), s.maxBatchSize)
	}

	results := make([]Result, len(records))
	valid := make([]int, 0, len(records))
	texts := make([]string, 0, len(records))

	for i, rec := range records {
		id := rec.ID
		if id == "" {
			id = deriveID(rec.Content)
		}
		results[i] = Result{ID: id, Status: StatusOK}

		if rec.Content == "" {
			results[i].Status = StatusError
			results[i].Err = ErrEmptyContent
			continue
		}
		valid = append(valid, i)
		texts = append(texts, rec.Content)
	}

	if len(valid) == 0 {
		return results, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	docs := make([]domain.Document, 0, len(valid))
	for j, i := range valid {
		docs = append(docs, domain.Document{
			ID:        results[i].ID,
			Content:   records[i].Content,
			Metadata:  records[i].Metadata,
			Embedding: vectors[j],
		})
	}

	if err := s.index.Add(docs); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}

	s.logger.Info("documents ingested",
		zap.Int("accepted", len(docs)),
		zap.Int("rejected", len(records)-len(docs)),
	)
	return results, nil
}

// deriveID builds a document ID from the content hash. IDs must not repeat
// across ingestion calls; the same content always maps to the same ID.
func deriveID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("doc-%x", sum[:8])
}
