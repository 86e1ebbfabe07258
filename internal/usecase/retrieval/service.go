// Package retrieval composes embedding, vector search, ranking, and context
// assembly into the retrieval pipeline.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
	"github.com/exportdesk/ragcore/internal/domain/prompt"
	"github.com/exportdesk/ragcore/internal/logger"
)

const (
	// DefaultTopK is the result count when the caller does not specify one.
	DefaultTopK = 5
	// overFetchFactor widens the index search so the relevance threshold and
	// metadata filters do not under-fill topK.
	overFetchFactor = 2
)

// Service is the retrieval orchestrator.
type Service struct {
	embedder      Embedder
	index         Index
	ranker        Ranker
	defaultTopK   int
	maxContextLen int
	logger        *zap.Logger
}

// New creates a retrieval service.
func New(embedder Embedder, index Index, ranker Ranker, log *zap.Logger) *Service {
	return &Service{
		embedder:      embedder,
		index:         index,
		ranker:        ranker,
		defaultTopK:   DefaultTopK,
		maxContextLen: prompt.DefaultMaxContextLength,
		logger:        log,
	}
}

// WithDefaults overrides the fallbacks applied when a request leaves topK or
// the context length unset.
func (s *Service) WithDefaults(topK, maxContextLength int) *Service {
	if topK > 0 {
		s.defaultTopK = topK
	}
	if maxContextLength > 0 {
		s.maxContextLen = maxContextLength
	}
	return s
}

// RetrieveDocuments embeds the query, searches the index with over-fetch,
// ranks the candidates, and truncates to topK. An empty or whitespace-only
// query returns an empty list without an embedding call. Failures inside the
// pipeline surface as a single retrieval-stage error; there is no silent
// degradation to an empty context.
func (s *Service) RetrieveDocuments(
	ctx context.Context, query string, topK int, filters domain.Filters, boostTrustedSources bool,
) ([]domain.Document, error) {
	if strings.TrimSpace(query) == "" {
		return []domain.Document{}, nil
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	candidates, err := s.index.Search(queryVec, topK*overFetchFactor, filters)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	ranked := s.ranker.Rank(candidates, boostTrustedSources)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	logger.FromContext(ctx).Debug("documents retrieved",
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(ranked)),
		zap.Int("top_k", topK),
	)
	return ranked, nil
}

// SearchByMetadata returns all documents matching the filters, unscored.
func (s *Service) SearchByMetadata(filters domain.Filters) []domain.Document {
	return s.index.SearchByMetadata(filters)
}

// ContextRequest parameterizes GenerateWithContext.
type ContextRequest struct {
	Prompt              string
	Query               string // falls back to Prompt when empty
	TopK                int
	Filters             domain.Filters
	BoostTrustedSources bool
	IncludeCitations    bool
	MaxContextLength    int
	Documents           []domain.Document // caller-supplied; skips retrieval when set
}

// GenerateWithContext retrieves grounding documents (unless supplied), builds
// the bounded context, and returns the enhanced prompt plus citation sources.
// The model call itself is left to the caller so sources can be surfaced
// alongside whatever text the caller generates.
func (s *Service) GenerateWithContext(
	ctx context.Context, req ContextRequest,
) (string, []prompt.Source, error) {
	docs := req.Documents
	if docs == nil {
		query := req.Query
		if query == "" {
			query = req.Prompt
		}
		var err error
		docs, err = s.RetrieveDocuments(ctx, query, req.TopK, req.Filters, req.BoostTrustedSources)
		if err != nil {
			return "", nil, err
		}
	}

	maxLen := req.MaxContextLength
	if maxLen <= 0 {
		maxLen = s.maxContextLen
	}
	contextStr := prompt.BuildContext(docs, req.IncludeCitations, maxLen)
	return prompt.Enhance(req.Prompt, contextStr), prompt.ExtractSources(docs), nil
}
