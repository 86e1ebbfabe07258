package domain

// Metadata is a string-keyed map of scalar or list values attached to a document
// (source, country, category, certifications, last-updated). Values are either
// string or []string.
type Metadata map[string]any

// Filters constrain a search to documents whose metadata matches every key.
// Multiple values for one key are alternatives (OR within a key, AND across keys).
type Filters map[string][]string

// Document is a regulatory text fragment with its embedding and metadata.
// Immutable after ingestion except RelevanceScore, which is recomputed per
// query and never persisted.
type Document struct {
	ID             string
	Content        string
	Metadata       Metadata
	Embedding      []float32 // nil until computed
	RelevanceScore *float64  // set only on search results
}

// Source returns the metadata "source" value, or "" when absent.
func (d *Document) Source() string {
	s, _ := d.Metadata["source"].(string)
	return s
}

// Title returns the metadata "title" value, falling back to the document ID.
func (d *Document) Title() string {
	if t, ok := d.Metadata["title"].(string); ok && t != "" {
		return t
	}
	return d.ID
}

// Score returns the relevance score, or 0 when unset.
func (d *Document) Score() float64 {
	if d.RelevanceScore == nil {
		return 0
	}
	return *d.RelevanceScore
}

// WithScore returns a shallow copy of the document carrying the given score.
func (d Document) WithScore(score float64) Document {
	d.RelevanceScore = &score
	return d
}

// Matches reports whether the document metadata satisfies every filter key.
// A scalar metadata value matches when it equals any of the filter values;
// a list value matches when it intersects the filter values.
func (m Metadata) Matches(filters Filters) bool {
	for key, wanted := range filters {
		if len(wanted) == 0 {
			continue
		}
		val, ok := m[key]
		if !ok {
			return false
		}
		if !valueMatches(val, wanted) {
			return false
		}
	}
	return true
}

func valueMatches(val any, wanted []string) bool {
	switch v := val.(type) {
	case string:
		for _, w := range wanted {
			if v == w {
				return true
			}
		}
	case []string:
		for _, item := range v {
			for _, w := range wanted {
				if item == w {
					return true
				}
			}
		}
	case []any:
		// metadata decoded from JSON carries lists as []any
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			for _, w := range wanted {
				if s == w {
					return true
				}
			}
		}
	}
	return false
}
