// Package embedding maps text to fixed-length L2-normalized vectors with a
// bounded query cache.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
	"github.com/exportdesk/ragcore/internal/metrics"
)

const (
	// DefaultCacheCapacity bounds the query embedding cache.
	DefaultCacheCapacity = 128
	// DefaultBatchSize bounds how many texts go to the provider per call.
	DefaultBatchSize = 32
)

// Service vectorizes queries and document batches. Query embeddings go through
// a bounded LRU cache; empty or whitespace-only input yields the zero vector
// without a provider call.
type Service struct {
	provider   Provider
	dimensions int
	batchSize  int
	timeout    time.Duration
	cache      *lruCache
	logger     *zap.Logger
}

// New creates an embedding service.
func New(provider Provider, dimensions int, logger *zap.Logger) *Service {
	return &Service{
		provider:   provider,
		dimensions: dimensions,
		batchSize:  DefaultBatchSize,
		cache:      newLRUCache(DefaultCacheCapacity),
		logger:     logger,
	}
}

// WithCacheCapacity overrides the query cache capacity.
func (s *Service) WithCacheCapacity(capacity int) *Service {
	if capacity > 0 {
		s.cache = newLRUCache(capacity)
	}
	return s
}

// WithBatchSize overrides the provider batch chunk size.
func (s *Service) WithBatchSize(size int) *Service {
	if size > 0 {
		s.batchSize = size
	}
	return s
}

// WithTimeout sets a per-call provider timeout. Zero disables it.
func (s *Service) WithTimeout(timeout time.Duration) *Service {
	s.timeout = timeout
	return s
}

// EmbedQuery returns the normalized embedding for a query string.
// Cache hits bypass the provider entirely.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return make([]float32, s.dimensions), nil
	}

	if vec, ok := s.cache.Get(text); ok {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
		return cloneVec(vec), nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	vec := normalize(result.Embedding)
	s.cache.Put(text, vec)
	// The cached slice is never handed out; a caller mutating the result must
	// not corrupt later hits.
	return cloneVec(vec), nil
}

func cloneVec(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}

// EmbedBatch returns normalized embeddings for a slice of texts, preserving
// input order. Inputs go to the provider in fixed-size chunks to bound peak
// memory. Empty texts map to the zero vector.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	// Collect indexes that actually need the provider.
	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			vectors[i] = make([]float32, s.dimensions)
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		inputs := make([]string, len(chunk))
		for j, idx := range chunk {
			inputs[j] = texts[idx]
		}

		callCtx, cancel := s.withTimeout(ctx)
		result, err := s.provider.BatchEmbed(callCtx, inputs)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(result.Embeddings) != len(chunk) {
			return nil, fmt.Errorf(
				"embed batch [%d:%d]: got %d vectors for %d inputs: %w",
				start, end, len(result.Embeddings), len(chunk), domain.ErrEmbeddingProvider,
			)
		}

		for j, idx := range chunk {
			vectors[idx] = normalize(result.Embeddings[j])
		}
	}

	return vectors, nil
}

// Dimensions returns the configured vector dimensionality.
func (s *Service) Dimensions() int { return s.dimensions }

// ClearCache drops all cached query embeddings.
func (s *Service) ClearCache() {
	s.cache.Clear()
	s.logger.Info("embedding cache cleared")
}

// CacheStats returns query cache hit/miss counters.
func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// normalize scales a vector to unit L2 norm so that inner product equals
// cosine similarity. The zero vector is returned unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
