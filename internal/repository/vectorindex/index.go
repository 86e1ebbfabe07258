// Package vectorindex stores document vectors in memory and serves exact
// inner-product search with metadata filtering.
package vectorindex

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
)

// Index holds documents and their embeddings. Searches take a read lock;
// Add, Rebuild, and Load take the write lock, so mutation is serialized
// against in-flight searches.
type Index struct {
	mu     sync.RWMutex
	dim    int
	docs   []domain.Document
	byID   map[string]int
	logger *zap.Logger
}

// New creates an index for vectors of the given dimensionality.
func New(dim int, logger *zap.Logger) *Index {
	return &Index{
		dim:    dim,
		byID:   make(map[string]int),
		logger: logger,
	}
}

// Dimension returns the index vector dimensionality.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Add indexes documents. A document with an embedding of the wrong
// dimensionality fails the whole call; a document without an embedding is
// skipped with a warning. Re-adding an existing ID replaces the document.
func (ix *Index) Add(docs []domain.Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		return domain.ErrIndexNotInitialized
	}

	// Validate before mutating so a bad batch cannot corrupt loaded state.
	for _, doc := range docs {
		if doc.Embedding != nil && len(doc.Embedding) != ix.dim {
			return fmt.Errorf(
				"document %q has %d dimensions, index has %d: %w",
				doc.ID, len(doc.Embedding), ix.dim, domain.ErrDimensionMismatch,
			)
		}
	}

	for _, doc := range docs {
		if doc.Embedding == nil {
			ix.logger.Warn("skipping document without embedding", zap.String("id", doc.ID))
			continue
		}
		doc.RelevanceScore = nil
		if pos, ok := ix.byID[doc.ID]; ok {
			ix.docs[pos] = doc
			continue
		}
		ix.byID[doc.ID] = len(ix.docs)
		ix.docs = append(ix.docs, doc)
	}

	return nil
}

// Search returns up to topK documents ranked by inner product against the
// query vector. Filters are applied during the scan, not as a post-hoc
// truncation, so topK is filled whenever enough matches exist.
func (ix *Index) Search(queryVec []float32, topK int, filters domain.Filters) ([]domain.Document, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.dim == 0 {
		return nil, domain.ErrIndexNotInitialized
	}
	if len(queryVec) != ix.dim {
		return nil, fmt.Errorf(
			"query vector has %d dimensions, index has %d: %w",
			len(queryVec), ix.dim, domain.ErrDimensionMismatch,
		)
	}
	if topK <= 0 {
		return nil, nil
	}

	scored := make([]domain.Document, 0, topK)
	for _, doc := range ix.docs {
		if len(filters) > 0 && !doc.Metadata.Matches(filters) {
			continue
		}
		scored = append(scored, stripped(doc).WithScore(dot(queryVec, doc.Embedding)))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score() > scored[j].Score()
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// SearchByMetadata returns all documents matching the filters, unscored.
// Useful for exact attribute browsing.
func (ix *Index) SearchByMetadata(filters domain.Filters) []domain.Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []domain.Document
	for _, doc := range ix.docs {
		if doc.Metadata.Matches(filters) {
			out = append(out, stripped(doc))
		}
	}
	return out
}

// Rebuild reconstructs the index structure from its current document set.
// Search results after Rebuild are identical to an index built fresh from
// the same documents.
func (ix *Index) Rebuild() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	compacted := make([]domain.Document, 0, len(ix.docs))
	byID := make(map[string]int, len(ix.docs))
	for _, doc := range ix.docs {
		if pos, ok := byID[doc.ID]; ok {
			compacted[pos] = doc
			continue
		}
		byID[doc.ID] = len(compacted)
		compacted = append(compacted, doc)
	}
	ix.docs = compacted
	ix.byID = byID
}

// stripped returns a copy without the embedding; search results expose
// content and metadata only.
func stripped(doc domain.Document) domain.Document {
	doc.Embedding = nil
	return doc
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
