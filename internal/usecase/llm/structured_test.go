package llm

import (
	"errors"
	"testing"

	"github.com/exportdesk/ragcore/internal/domain"
)

var nameScoreSchema = Schema{"name": FieldString, "score": FieldNumber}

func TestParseStructured_DirectJSON(t *testing.T) {
	out, err := parseStructured(`{"name": "x", "score": 0.9}`, nameScoreSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["name"] != "x" || out["score"] != 0.9 {
		t.Errorf("unexpected parse: %v", out)
	}
}

func TestParseStructured_EmbeddedJSON(t *testing.T) {
	raw := `Sure! {"name": "x", "score": 0.9} Hope that helps!`
	out, err := parseStructured(raw, nameScoreSchema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["name"] != "x" || out["score"] != 0.9 {
		t.Errorf("unexpected parse: %v", out)
	}
}

func TestParseStructured_NoJSONFails(t *testing.T) {
	_, err := parseStructured("I cannot answer that in JSON.", nameScoreSchema)
	if !errors.Is(err, domain.ErrMalformedStructuredOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
}

func TestParseStructured_MissingFieldRejected(t *testing.T) {
	_, err := parseStructured(`{"name": "x"}`, nameScoreSchema)
	if !errors.Is(err, domain.ErrMalformedStructuredOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
}

func TestParseStructured_TypeMismatchNotCoerced(t *testing.T) {
	// score arrives as a string; it must be rejected, not converted.
	_, err := parseStructured(`{"name": "x", "score": "0.9"}`, nameScoreSchema)
	if !errors.Is(err, domain.ErrMalformedStructuredOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
}

func TestParseStructured_BooleanField(t *testing.T) {
	schema := Schema{"restricted": FieldBoolean}
	out, err := parseStructured(`{"restricted": true}`, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["restricted"] != true {
		t.Errorf("unexpected parse: %v", out)
	}
}

func TestExtractJSONObject_BracesInsideStrings(t *testing.T) {
	raw := `prefix {"name": "curly } brace", "score": 1} suffix`
	sub, ok := extractJSONObject(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if sub != `{"name": "curly } brace", "score": 1}` {
		t.Errorf("unexpected extraction: %q", sub)
	}
}

func TestExtractJSONObject_NestedObjects(t *testing.T) {
	raw := `x {"a": {"b": 1}} y`
	sub, ok := extractJSONObject(raw)
	if !ok {
		t.Fatal("expected extraction to succeed")
	}
	if sub != `{"a": {"b": 1}}` {
		t.Errorf("unexpected extraction: %q", sub)
	}
}

func TestExtractJSONObject_Unbalanced(t *testing.T) {
	if _, ok := extractJSONObject(`{"a": 1`); ok {
		t.Error("expected unbalanced object to fail extraction")
	}
}
