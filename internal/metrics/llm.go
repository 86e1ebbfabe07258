package metrics

import "github.com/prometheus/client_golang/prometheus"

// Inference gateway Prometheus metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragcore",
			Name:      "llm_requests_total",
			Help:      "Total number of inference requests",
		},
		[]string{"backend", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragcore",
			Name:      "llm_request_duration_seconds",
			Help:      "Inference request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragcore",
			Name:      "llm_tokens_total",
			Help:      "Total inference tokens consumed",
		},
		[]string{"backend", "type"}, // "prompt" / "completion"
	)

	LLMRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragcore",
			Name:      "llm_rate_limited_total",
			Help:      "Inference calls rejected by the local sliding-window limiter",
		},
		[]string{"backend"},
	)

	LLMRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragcore",
			Name:      "llm_retries_total",
			Help:      "Inference call retry attempts",
		},
		[]string{"backend"},
	)
)

var llmMetricsRegistered bool

// RegisterLLMMetrics registers Prometheus inference metrics. Must be called once from main.
func RegisterLLMMetrics() {
	if llmMetricsRegistered {
		return
	}
	prometheus.MustRegister(LLMRequestsTotal)
	prometheus.MustRegister(LLMRequestDuration)
	prometheus.MustRegister(LLMTokensTotal)
	prometheus.MustRegister(LLMRateLimitedTotal)
	prometheus.MustRegister(LLMRetriesTotal)
	llmMetricsRegistered = true
}
