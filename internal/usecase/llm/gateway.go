// Package llm is the uniform gateway over interchangeable inference backends.
// It owns the sliding-window rate limiter, the retry policy, and structured
// output parsing; backend-specific request framing never leaks to callers.
package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
	"github.com/exportdesk/ragcore/internal/metrics"
)

const (
	// DefaultRateLimit is the per-minute call ceiling.
	DefaultRateLimit = 50
	// DefaultMaxRetries bounds attempts in GenerateWithRetry.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the exponential backoff base.
	DefaultBaseDelay = time.Second
	// structuredTemperature favors determinism for schema-conforming output.
	structuredTemperature = 0.3

	rateWindow = time.Minute
)

// Options override per-call sampling parameters. Zero values fall back to the
// gateway defaults.
type Options struct {
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	Model        string
}

// Gateway wraps one inference backend with rate limiting, retry, and
// structured output extraction.
type Gateway struct {
	backend    Backend
	limiter    *slidingWindow
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
	defTemp    float32
	defTokens  int
	logger     *zap.Logger

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway creates a gateway around a backend.
func NewGateway(backend Backend, logger *zap.Logger) *Gateway {
	return &Gateway{
		backend:    backend,
		limiter:    newSlidingWindow(DefaultRateLimit, rateWindow),
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		defTemp:    0.7,
		defTokens:  1024,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// WithRateLimit overrides the per-minute ceiling.
func (g *Gateway) WithRateLimit(perMinute int) *Gateway {
	if perMinute > 0 {
		g.limiter = newSlidingWindow(perMinute, rateWindow)
	}
	return g
}

// WithRetryPolicy overrides retry attempts and backoff base.
func (g *Gateway) WithRetryPolicy(maxRetries int, baseDelay time.Duration) *Gateway {
	if maxRetries > 0 {
		g.maxRetries = maxRetries
	}
	if baseDelay > 0 {
		g.baseDelay = baseDelay
	}
	return g
}

// WithTimeout sets a per-call backend timeout. Zero disables it.
func (g *Gateway) WithTimeout(timeout time.Duration) *Gateway {
	g.timeout = timeout
	return g
}

// WithDefaults overrides default sampling parameters.
func (g *Gateway) WithDefaults(temperature float32, maxTokens int) *Gateway {
	if temperature > 0 {
		g.defTemp = temperature
	}
	if maxTokens > 0 {
		g.defTokens = maxTokens
	}
	return g
}

// Backend returns the active backend name.
func (g *Gateway) Backend() string { return g.backend.Name() }

// Generate runs a single completion through the rate limiter. A call over the
// ceiling fails immediately with a rate limit error carrying the wait time.
func (g *Gateway) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	if ok, wait := g.limiter.Allow(); !ok {
		metrics.LLMRateLimitedTotal.WithLabelValues(g.backend.Name()).Inc()
		return "", domain.NewRateLimited(wait)
	}

	callCtx, cancel := g.withTimeout(ctx)
	defer cancel()

	result, err := g.backend.Complete(callCtx, g.request(prompt, opts))
	if err != nil {
		return "", fmt.Errorf("backend %s: %w", g.backend.Name(), err)
	}
	return result.Text, nil
}

// GenerateWithRetry retries transient failures with exponential backoff
// (the delay doubles on every retry, starting at the base). Structural failures — bad credentials, unknown
// model, the local rate limiter — stop the loop immediately. maxRetries <= 0
// falls back to the gateway default.
func (g *Gateway) GenerateWithRetry(
	ctx context.Context, prompt string, maxRetries int, opts Options,
) (string, error) {
	if maxRetries <= 0 {
		maxRetries = g.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			metrics.LLMRetriesTotal.WithLabelValues(g.backend.Name()).Inc()
			delay := g.baseDelay * (1 << (attempt - 1))
			g.logger.Warn("retrying generation",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := g.sleep(ctx, delay); err != nil {
				return "", fmt.Errorf("backoff interrupted: %w", err)
			}
		}

		text, err := g.Generate(ctx, prompt, opts)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("%d attempts exhausted: %w", maxRetries, lastErr)
}

// GenerateStructured requests schema-conforming output at low temperature and
// parses it strictly. Output that cannot be parsed as the schema — directly or
// as an embedded JSON object — fails with a malformed output error, never a
// best-guess value.
func (g *Gateway) GenerateStructured(
	ctx context.Context, prompt string, schema Schema, opts Options,
) (map[string]any, error) {
	opts.Temperature = structuredTemperature
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = schema.instruction()
	} else {
		opts.SystemPrompt += "\n\n" + schema.instruction()
	}

	raw, err := g.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, err
	}

	parsed, err := parseStructured(raw, schema)
	if err != nil {
		g.logger.Warn("structured output rejected", zap.Error(err))
		return nil, err
	}
	return parsed, nil
}

func (g *Gateway) request(prompt string, opts Options) domain.CompletionRequest {
	temp := opts.Temperature
	if temp <= 0 {
		temp = g.defTemp
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.defTokens
	}
	return domain.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: opts.SystemPrompt,
		Temperature:  temp,
		MaxTokens:    maxTokens,
		Model:        opts.Model,
	}
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
