package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/exportdesk/ragcore/internal/domain"
)

// FieldType is a primitive type a schema field must hold.
type FieldType string

// Schema field types.
const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// Schema declares the shape structured model output must satisfy:
// field name to primitive type.
type Schema map[string]FieldType

// instruction renders the schema as a model-facing format request.
func (s Schema) instruction() string {
	fields := make([]string, 0, len(s))
	for name, t := range s {
		fields = append(fields, fmt.Sprintf("%q (%s)", name, t))
	}
	sort.Strings(fields)
	return fmt.Sprintf(
		"Respond with a single JSON object containing exactly these fields: %s. No prose, no markdown.",
		strings.Join(fields, ", "),
	)
}

// parseStructured parses raw model output against the schema. It first tries
// the whole text as JSON, then falls back to the first balanced JSON object
// embedded in it. Partial or type-mismatched results are rejected, never
// coerced.
func parseStructured(raw string, schema Schema) (map[string]any, error) {
	var parsed map[string]any

	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		sub, ok := extractJSONObject(raw)
		if !ok {
			return nil, domain.NewStructuredOutputError("no JSON object found in output", raw)
		}
		if err := json.Unmarshal([]byte(sub), &parsed); err != nil {
			return nil, domain.NewStructuredOutputError("embedded JSON is invalid: "+err.Error(), raw)
		}
	}

	for name, want := range schema {
		val, ok := parsed[name]
		if !ok {
			return nil, domain.NewStructuredOutputError(fmt.Sprintf("missing field %q", name), raw)
		}
		if !typeMatches(val, want) {
			return nil, domain.NewStructuredOutputError(
				fmt.Sprintf("field %q is not a %s", name, want), raw,
			)
		}
	}

	return parsed, nil
}

func typeMatches(val any, want FieldType) bool {
	switch want {
	case FieldString:
		_, ok := val.(string)
		return ok
	case FieldNumber:
		_, ok := val.(float64)
		return ok
	case FieldBoolean:
		_, ok := val.(bool)
		return ok
	}
	return false
}

// extractJSONObject returns the first balanced {...} substring, skipping
// braces inside JSON strings.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// skip structural characters inside strings
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
