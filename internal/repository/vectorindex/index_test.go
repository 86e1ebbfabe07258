package vectorindex

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
)

func testIndex(t *testing.T) *Index {
	t.Helper()
	return New(3, zap.NewNop())
}

func doc(id string, vec []float32, meta domain.Metadata) domain.Document {
	return domain.Document{ID: id, Content: "content of " + id, Metadata: meta, Embedding: vec}
}

func TestAdd_DimensionMismatch(t *testing.T) {
	ix := testIndex(t)

	err := ix.Add([]domain.Document{doc("a", []float32{1, 0}, nil)})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if ix.Len() != 0 {
		t.Errorf("expected empty index after rejected batch, got %d", ix.Len())
	}
}

func TestAdd_SkipsDocumentsWithoutEmbedding(t *testing.T) {
	ix := testIndex(t)

	err := ix.Add([]domain.Document{
		doc("a", []float32{1, 0, 0}, nil),
		{ID: "no-vector", Content: "text"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 document, got %d", ix.Len())
	}
}

func TestAdd_ReplacesExistingID(t *testing.T) {
	ix := testIndex(t)

	if err := ix.Add([]domain.Document{doc("a", []float32{1, 0, 0}, nil)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ix.Add([]domain.Document{doc("a", []float32{0, 1, 0}, nil)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 document after replace, got %d", ix.Len())
	}
}

func TestSearch_NotInitialized(t *testing.T) {
	ix := New(0, zap.NewNop())

	_, err := ix.Search([]float32{1}, 5, nil)
	if !errors.Is(err, domain.ErrIndexNotInitialized) {
		t.Fatalf("expected index not initialized, got %v", err)
	}
}

func TestSearch_QueryDimensionMismatch(t *testing.T) {
	ix := testIndex(t)

	_, err := ix.Search([]float32{1, 0}, 5, nil)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestSearch_RanksByInnerProduct(t *testing.T) {
	ix := testIndex(t)
	must(t, ix.Add([]domain.Document{
		doc("far", []float32{0, 1, 0}, nil),
		doc("near", []float32{1, 0, 0}, nil),
		doc("mid", []float32{0.7, 0.7, 0}, nil),
	}))

	results, err := ix.Search([]float32{1, 0, 0}, 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"near", "mid", "far"}
	if len(results) != len(wantOrder) {
		t.Fatalf("expected %d results, got %d", len(wantOrder), len(results))
	}
	for i, id := range wantOrder {
		if results[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, results[i].ID)
		}
		if results[i].RelevanceScore == nil {
			t.Errorf("position %d: expected relevance score set", i)
		}
	}
}

func TestSearch_TopKNeverExceeded(t *testing.T) {
	ix := testIndex(t)
	must(t, ix.Add([]domain.Document{
		doc("a", []float32{1, 0, 0}, nil),
		doc("b", []float32{0, 1, 0}, nil),
		doc("c", []float32{0, 0, 1}, nil),
	}))

	results, err := ix.Search([]float32{1, 1, 1}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) > 2 {
		t.Errorf("expected at most 2 results, got %d", len(results))
	}
}

func TestSearch_FiltersFillTopK(t *testing.T) {
	ix := testIndex(t)
	// The two highest-scoring documents do not match the filter; topK must
	// still be filled from matching documents.
	must(t, ix.Add([]domain.Document{
		doc("us-1", []float32{1, 0, 0}, domain.Metadata{"country": "US"}),
		doc("eu-1", []float32{0.9, 0.1, 0}, domain.Metadata{"country": "EU"}),
		doc("eu-2", []float32{0.8, 0.2, 0}, domain.Metadata{"country": "EU"}),
		doc("us-2", []float32{0.5, 0.5, 0}, domain.Metadata{"country": "US"}),
	}))

	results, err := ix.Search([]float32{1, 0, 0}, 2, domain.Filters{"country": {"US"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected filter-aware search to fill topK=2, got %d", len(results))
	}
	for _, r := range results {
		if c, _ := r.Metadata["country"].(string); c != "US" {
			t.Errorf("document %s violates filter: country=%v", r.ID, r.Metadata["country"])
		}
	}
}

func TestSearch_ListMetadataMatchesAnyValue(t *testing.T) {
	ix := testIndex(t)
	must(t, ix.Add([]domain.Document{
		doc("a", []float32{1, 0, 0}, domain.Metadata{"certifications": []string{"FDA", "ISO9001"}}),
		doc("b", []float32{0.9, 0, 0}, domain.Metadata{"certifications": []string{"CE"}}),
	}))

	results, err := ix.Search([]float32{1, 0, 0}, 5, domain.Filters{"certifications": {"FDA"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("expected only document a, got %v", ids(results))
	}
}

func TestSearchByMetadata_NoScore(t *testing.T) {
	ix := testIndex(t)
	must(t, ix.Add([]domain.Document{
		doc("a", []float32{1, 0, 0}, domain.Metadata{"category": "food"}),
		doc("b", []float32{0, 1, 0}, domain.Metadata{"category": "machinery"}),
	}))

	results := ix.SearchByMetadata(domain.Filters{"category": {"food"}})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].RelevanceScore != nil {
		t.Error("expected no relevance score on metadata browse")
	}
}

func TestRebuild_SearchResultsUnchanged(t *testing.T) {
	ix := testIndex(t)
	docs := []domain.Document{
		doc("a", []float32{1, 0, 0}, nil),
		doc("b", []float32{0.5, 0.5, 0}, nil),
		doc("c", []float32{0, 0, 1}, nil),
	}
	must(t, ix.Add(docs))

	before, err := ix.Search([]float32{1, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ix.Rebuild()

	after, err := ix.Search([]float32{1, 0, 0}, 3, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(before) != len(after) {
		t.Fatalf("result count changed: %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Errorf("position %d: %s -> %s", i, before[i].ID, after[i].ID)
		}
		if before[i].Score() != after[i].Score() {
			t.Errorf("position %d: score %v -> %v", i, before[i].Score(), after[i].Score())
		}
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func ids(docs []domain.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}
