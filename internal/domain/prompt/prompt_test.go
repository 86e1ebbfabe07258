package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/exportdesk/ragcore/internal/domain"
)

func contentDoc(id, source, content string) domain.Document {
	return domain.Document{
		ID:      id,
		Content: content,
		Metadata: domain.Metadata{
			"source": source,
			"title":  "Title " + id,
		},
	}
}

func TestBuildContext_WithCitations(t *testing.T) {
	docs := []domain.Document{
		contentDoc("a", "fda.gov", "FDA rules."),
		contentDoc("b", "europa.eu", "CE rules."),
	}

	out := BuildContext(docs, true, 4000)

	if !strings.Contains(out, "[Source: fda.gov — Title a]") {
		t.Errorf("expected citation header for a, got %q", out)
	}
	if !strings.Contains(out, "FDA rules.") || !strings.Contains(out, "CE rules.") {
		t.Errorf("expected both contents, got %q", out)
	}
	if strings.Index(out, "FDA rules.") > strings.Index(out, "CE rules.") {
		t.Error("expected ranked order preserved")
	}
}

func TestBuildContext_WithoutCitations(t *testing.T) {
	out := BuildContext([]domain.Document{contentDoc("a", "fda.gov", "FDA rules.")}, false, 4000)

	if strings.Contains(out, "[Source:") {
		t.Errorf("expected no citation header, got %q", out)
	}
	if out != "FDA rules." {
		t.Errorf("expected bare content, got %q", out)
	}
}

func TestBuildContext_TruncatesOnlyOverflowingBlock(t *testing.T) {
	first := strings.Repeat("A", 50)
	second := strings.Repeat("B", 50)
	docs := []domain.Document{
		contentDoc("a", "x", first),
		contentDoc("b", "x", second),
	}

	out := BuildContext(docs, false, 70)

	// The first block is intact; the second is cut to the remaining budget.
	if !strings.HasPrefix(out, first) {
		t.Fatal("expected first block intact")
	}
	if len(out) > 70 {
		t.Errorf("expected context within budget, got %d chars", len(out))
	}
	if !strings.Contains(out, "B") {
		t.Error("expected truncated second block to contribute")
	}
	if strings.Count(out, "B") >= 50 {
		t.Error("expected second block truncated")
	}
}

func TestBuildContext_StopsWhenBudgetExhausted(t *testing.T) {
	docs := []domain.Document{
		contentDoc("a", "x", strings.Repeat("A", 100)),
		contentDoc("b", "x", "never included"),
	}

	out := BuildContext(docs, false, 100)

	if strings.Contains(out, "never included") {
		t.Error("expected later blocks dropped once budget is spent")
	}
}

func TestBuildContext_DefaultLength(t *testing.T) {
	long := strings.Repeat("A", DefaultMaxContextLength+500)
	out := BuildContext([]domain.Document{contentDoc("a", "x", long)}, false, 0)

	if len(out) != DefaultMaxContextLength {
		t.Errorf("expected default budget %d, got %d", DefaultMaxContextLength, len(out))
	}
}

func TestBuildContext_TruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes; a 70-byte budget falls mid-rune.
	out := BuildContext([]domain.Document{contentDoc("a", "x", strings.Repeat("条", 40))}, false, 70)

	if !utf8.ValidString(out) {
		t.Fatal("expected truncation to keep the context valid UTF-8")
	}
	if len(out) > 70 {
		t.Errorf("expected context within budget, got %d bytes", len(out))
	}
}

func TestExtractSources_ExcerptOnRuneBoundary(t *testing.T) {
	docs := []domain.Document{contentDoc("a", "x", strings.Repeat("条", 100))}

	sources := ExtractSources(docs)
	if !utf8.ValidString(sources[0].Excerpt) {
		t.Fatal("expected excerpt to be valid UTF-8")
	}
	if len(sources[0].Excerpt) > 200 {
		t.Errorf("expected excerpt within 200 bytes, got %d", len(sources[0].Excerpt))
	}
}

func TestExtractSources(t *testing.T) {
	long := strings.Repeat("x", 300)
	docs := []domain.Document{
		contentDoc("a", "fda.gov", long).WithScore(0.9),
	}

	sources := ExtractSources(docs)
	if len(sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(sources))
	}
	s := sources[0]
	if s.Title != "Title a" || s.Source != "fda.gov" {
		t.Errorf("unexpected projection: %+v", s)
	}
	if len(s.Excerpt) != 200 {
		t.Errorf("expected 200-char excerpt, got %d", len(s.Excerpt))
	}
	if s.RelevanceScore != 0.9 {
		t.Errorf("expected score 0.9, got %v", s.RelevanceScore)
	}
}

func TestEnhance(t *testing.T) {
	out := Enhance("What certificates do I need?", "FDA context here")

	if !strings.Contains(out, "FDA context here") {
		t.Error("expected context injected")
	}
	if !strings.Contains(out, "What certificates do I need?") {
		t.Error("expected original prompt preserved")
	}
}

func TestEnhance_EmptyContextReturnsPrompt(t *testing.T) {
	if out := Enhance("q", ""); out != "q" {
		t.Errorf("expected prompt unchanged for empty context, got %q", out)
	}
}
