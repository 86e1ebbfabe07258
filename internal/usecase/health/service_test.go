package health

import (
	"context"
	"errors"
	"testing"
)

type checker struct{ err error }

func (c checker) HealthCheck(_ context.Context) error { return c.err }

type indexReader struct{ n, dim int }

func (r indexReader) Len() int       { return r.n }
func (r indexReader) Dimension() int { return r.dim }

func TestCheck_AllHealthy(t *testing.T) {
	s := New(checker{}, checker{}, indexReader{n: 12, dim: 1536})

	report := s.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if report.Documents != 12 {
		t.Errorf("expected 12 documents, got %d", report.Documents)
	}
	for name, result := range report.Checks {
		if result != CheckOK {
			t.Errorf("check %s: expected ok, got %s", name, result)
		}
	}
}

func TestCheck_DegradedOnFailingComponent(t *testing.T) {
	s := New(checker{err: errors.New("down")}, checker{}, indexReader{dim: 1536})

	report := s.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("expected degraded, got %s", report.Status)
	}
	if report.Checks["embedding"] != CheckError {
		t.Errorf("expected embedding check failed, got %s", report.Checks["embedding"])
	}
	if report.Checks["llm"] != CheckOK {
		t.Errorf("expected llm check passing, got %s", report.Checks["llm"])
	}
}

func TestCheck_IndexWithoutDimensionFails(t *testing.T) {
	s := New(checker{}, checker{}, indexReader{})

	report := s.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("expected degraded, got %s", report.Status)
	}
	if report.Checks["index"] != CheckError {
		t.Errorf("expected index check failed, got %s", report.Checks["index"])
	}
}

func TestCheck_NilCheckersSkipped(t *testing.T) {
	s := New(nil, nil, indexReader{dim: 1536})

	report := s.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("expected healthy, got %s", report.Status)
	}
	if _, ok := report.Checks["embedding"]; ok {
		t.Error("expected embedding check absent when unconfigured")
	}
	if _, ok := report.Checks["llm"]; ok {
		t.Error("expected llm check absent when unconfigured")
	}
}
