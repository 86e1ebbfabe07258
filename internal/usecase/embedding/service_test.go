package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
)

// --- Mocks ---

type mockProvider struct {
	vec        []float32
	err        error
	embedCalls int
	batchCalls int
	batchSizes []int
}

func (m *mockProvider) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.embedCalls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec}, nil
}

func (m *mockProvider) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 0, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

// --- Tests ---

func TestEmbedQuery_EmptyReturnsZeroVector(t *testing.T) {
	provider := &mockProvider{vec: []float32{3, 4, 0}}
	svc := New(provider, 3, zap.NewNop())

	for _, input := range []string{"", "   ", "\t\n"} {
		vec, err := svc.EmbedQuery(context.Background(), input)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", input, err)
		}
		if len(vec) != 3 {
			t.Fatalf("expected 3 dimensions, got %d", len(vec))
		}
		for i, v := range vec {
			if v != 0 {
				t.Errorf("expected zero vector for %q, got %v at index %d", input, v, i)
			}
		}
	}
	if provider.embedCalls != 0 {
		t.Errorf("expected no provider calls, got %d", provider.embedCalls)
	}
}

func TestEmbedQuery_Normalizes(t *testing.T) {
	provider := &mockProvider{vec: []float32{3, 4, 0}}
	svc := New(provider, 3, zap.NewNop())

	vec, err := svc.EmbedQuery(context.Background(), "export duty rates")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-6 {
		t.Errorf("expected unit norm, got %v", math.Sqrt(norm))
	}
}

func TestEmbedQuery_CacheHitBypassesProvider(t *testing.T) {
	provider := &mockProvider{vec: []float32{1, 0, 0}}
	svc := New(provider, 3, zap.NewNop())

	first, err := svc.EmbedQuery(context.Background(), "CE marking requirements")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.EmbedQuery(context.Background(), "CE marking requirements")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.embedCalls != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.embedCalls)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected identical vectors, diverged at %d", i)
		}
	}

	stats := svc.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", stats.Hits, stats.Misses)
	}
}

func TestEmbedQuery_CallerMutationDoesNotCorruptCache(t *testing.T) {
	provider := &mockProvider{vec: []float32{1, 0, 0}}
	svc := New(provider, 3, zap.NewNop())

	first, err := svc.EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first[0] = -42

	second, err := svc.EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second[0] != 1 {
		t.Errorf("expected cached vector unaffected by caller mutation, got %v", second[0])
	}
	second[1] = -42

	third, err := svc.EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third[1] != 0 {
		t.Errorf("expected cache hit result isolated from caller mutation, got %v", third[1])
	}
}

func TestEmbedQuery_ClearCacheForcesRecompute(t *testing.T) {
	provider := &mockProvider{vec: []float32{1, 0, 0}}
	svc := New(provider, 3, zap.NewNop())

	if _, err := svc.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc.ClearCache()
	if _, err := svc.EmbedQuery(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.embedCalls != 2 {
		t.Errorf("expected 2 provider calls after clear, got %d", provider.embedCalls)
	}
}

func TestEmbedQuery_ProviderErrorPropagates(t *testing.T) {
	provider := &mockProvider{err: domain.ErrEmbeddingProvider}
	svc := New(provider, 3, zap.NewNop())

	_, err := svc.EmbedQuery(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestEmbedBatch_ChunksAndPreservesOrder(t *testing.T) {
	provider := &mockProvider{}
	svc := New(provider, 3, zap.NewNop()).WithBatchSize(2)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := svc.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if provider.batchCalls != 3 {
		t.Errorf("expected 3 chunked calls, got %d", provider.batchCalls)
	}
	for i, size := range []int{2, 2, 1} {
		if provider.batchSizes[i] != size {
			t.Errorf("chunk %d: expected size %d, got %d", i, size, provider.batchSizes[i])
		}
	}

	// mockProvider encodes len(text) in the first component; order must hold
	// after normalization (all positive scalars normalize to 1).
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
	for i, vec := range vecs {
		if vec[0] != 1 {
			t.Errorf("vector %d: expected normalized first component 1, got %v", i, vec[0])
		}
	}
}

func TestEmbedBatch_EmptyTextGetsZeroVector(t *testing.T) {
	provider := &mockProvider{}
	svc := New(provider, 3, zap.NewNop())

	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs[1] {
		if v != 0 {
			t.Errorf("expected zero vector for empty text, got %v at %d", v, i)
		}
	}
	// Only the two non-empty texts went to the provider.
	if provider.batchSizes[0] != 2 {
		t.Errorf("expected provider batch of 2, got %d", provider.batchSizes[0])
	}
}

func TestEmbedBatch_ProviderErrorFailsCall(t *testing.T) {
	provider := &mockProvider{err: errors.New("boom")}
	svc := New(provider, 3, zap.NewNop())

	if _, err := svc.EmbedBatch(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected error")
	}
}
