package health

import "context"

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// BackendChecker checks inference backend availability.
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexReader reports index readiness.
type IndexReader interface {
	Len() int
	Dimension() int
}
