// Package rank reorders retrieved documents, applies the trusted-source boost,
// and enforces the relevance floor.
package rank

import (
	"sort"

	"github.com/exportdesk/ragcore/internal/domain"
)

const (
	// DefaultThreshold is the minimum score a document needs to survive ranking.
	DefaultThreshold = 0.3
	// DefaultBoost is the score bonus for trusted-source documents.
	DefaultBoost = 0.1
	// maxScore caps boosted scores at the maximum valid similarity.
	maxScore = 1.0
)

// Engine ranks search results.
type Engine struct {
	threshold float64
	boost     float64
	trusted   map[string]struct{}
}

// New creates a ranking engine with the given relevance threshold, boost
// amount, and trusted-source allow-list.
func New(threshold, boost float64, trustedSources []string) *Engine {
	trusted := make(map[string]struct{}, len(trustedSources))
	for _, s := range trustedSources {
		trusted[s] = struct{}{}
	}
	return &Engine{threshold: threshold, boost: boost, trusted: trusted}
}

// Rank sorts documents by relevance score descending (stable: equal scores
// keep retrieval order, unscored documents sort last), optionally boosts
// trusted sources, and drops documents below the threshold.
func (e *Engine) Rank(docs []domain.Document, boostTrustedSources bool) []domain.Document {
	out := make([]domain.Document, 0, len(docs))

	for _, doc := range docs {
		if boostTrustedSources && doc.RelevanceScore != nil && e.isTrusted(doc.Source()) {
			boosted := doc.Score() + e.boost
			if boosted > maxScore {
				boosted = maxScore
			}
			doc = doc.WithScore(boosted)
		}
		out = append(out, doc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].RelevanceScore, out[j].RelevanceScore
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})

	kept := out[:0]
	for _, doc := range out {
		if doc.RelevanceScore != nil && doc.Score() >= e.threshold {
			kept = append(kept, doc)
		}
	}
	return kept
}

// IsTrusted reports whether a source belongs to the allow-list.
func (e *Engine) IsTrusted(source string) bool { return e.isTrusted(source) }

func (e *Engine) isTrusted(source string) bool {
	_, ok := e.trusted[source]
	return ok
}
