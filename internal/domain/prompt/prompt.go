// Package prompt renders bounded, citation-annotated context from ranked
// documents and builds the grounded prompt handed to the model.
package prompt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/exportdesk/ragcore/internal/domain"
)

const (
	// DefaultMaxContextLength bounds the assembled context string.
	DefaultMaxContextLength = 4000
	// excerptLength bounds citation excerpts.
	excerptLength = 200

	blockSeparator = "\n\n"
)

// Source is a citation projection of a retrieved document.
type Source struct {
	Title          string          `json:"title"`
	Source         string          `json:"source"`
	Excerpt        string          `json:"excerpt"`
	RelevanceScore float64         `json:"relevance_score"`
	Metadata       domain.Metadata `json:"metadata,omitempty"`
}

// BuildContext concatenates document content blocks in ranked order. When a
// block would overflow maxLength, that block alone is truncated and assembly
// stops; higher-ranked blocks are never cut to make room for later ones.
func BuildContext(docs []domain.Document, includeCitations bool, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxContextLength
	}

	var b strings.Builder
	for _, doc := range docs {
		block := doc.Content
		if includeCitations {
			block = fmt.Sprintf("[Source: %s — %s]\n%s", doc.Source(), doc.Title(), doc.Content)
		}

		sep := ""
		if b.Len() > 0 {
			sep = blockSeparator
		}

		remaining := maxLength - b.Len() - len(sep)
		if remaining <= 0 {
			break
		}
		if len(block) > remaining {
			b.WriteString(sep)
			b.WriteString(truncate(block, remaining))
			break
		}
		b.WriteString(sep)
		b.WriteString(block)
	}
	return b.String()
}

// ExtractSources projects documents into citation entries for display.
// Independent of context length limits.
func ExtractSources(docs []domain.Document) []Source {
	sources := make([]Source, 0, len(docs))
	for _, doc := range docs {
		excerpt := truncate(doc.Content, excerptLength)
		sources = append(sources, Source{
			Title:          doc.Title(),
			Source:         doc.Source(),
			Excerpt:        excerpt,
			RelevanceScore: doc.Score(),
			Metadata:       doc.Metadata,
		})
	}
	return sources
}

// truncate cuts s to at most n bytes, backing off to a rune boundary so a
// multi-byte character is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Enhance wraps the caller's prompt with instructional framing and the
// assembled context.
func Enhance(originalPrompt, context string) string {
	if context == "" {
		return originalPrompt
	}
	return fmt.Sprintf(
		"Answer using the regulatory excerpts below. "+
			"Cite the source of each claim and say so explicitly when the excerpts do not cover the question.\n\n"+
			"Context:\n%s\n\nQuestion: %s",
		context, originalPrompt,
	)
}
