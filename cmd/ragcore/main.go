package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/config"
	"github.com/exportdesk/ragcore/internal/domain"
	"github.com/exportdesk/ragcore/internal/domain/rank"
	logpkg "github.com/exportdesk/ragcore/internal/logger"
	"github.com/exportdesk/ragcore/internal/metrics"
	"github.com/exportdesk/ragcore/internal/repository/vectorindex"
	chiTransport "github.com/exportdesk/ragcore/internal/transport/chi"
	ollamaTransport "github.com/exportdesk/ragcore/internal/transport/ollama"
	openaiTransport "github.com/exportdesk/ragcore/internal/transport/openai"
	embeddinguc "github.com/exportdesk/ragcore/internal/usecase/embedding"
	healthuc "github.com/exportdesk/ragcore/internal/usecase/health"
	ingestuc "github.com/exportdesk/ragcore/internal/usecase/ingest"
	llmuc "github.com/exportdesk/ragcore/internal/usecase/llm"
	retrievaluc "github.com/exportdesk/ragcore/internal/usecase/retrieval"
	"github.com/exportdesk/ragcore/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragcore API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("llm_backend", cfg.LLM.Backend),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterLLMMetrics()

	// Embedding service — composition root owns the cache lifecycle.
	provider := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	embedSvc := embeddinguc.New(provider, cfg.Embedding.Dimensions, logger).
		WithCacheCapacity(cfg.Embedding.CacheCapacity).
		WithBatchSize(cfg.Embedding.BatchSize).
		WithTimeout(time.Duration(cfg.Embedding.TimeoutSec) * time.Second)

	// Vector index
	index := vectorindex.New(cfg.Embedding.Dimensions, logger)
	if cfg.Index.LoadOnStart {
		if err := index.Load(cfg.Index.DataDir); err != nil {
			if errors.Is(err, domain.ErrIndexArtifactMissing) {
				logger.Warn("no persisted index found, starting empty", zap.String("dir", cfg.Index.DataDir))
			} else {
				logger.Fatal("Failed to load index", zap.Error(err))
			}
		}
	}

	// Inference backend — selected by configuration
	backend, checker := buildBackend(cfg.LLM, logger)
	gateway := llmuc.NewGateway(backend, logger).
		WithRateLimit(cfg.LLM.RateLimit).
		WithRetryPolicy(cfg.LLM.MaxRetries, time.Duration(cfg.LLM.BaseDelayMs)*time.Millisecond).
		WithTimeout(time.Duration(cfg.LLM.TimeoutSec) * time.Second).
		WithDefaults(cfg.LLM.Defaults.Temperature, cfg.LLM.Defaults.MaxTokens)
	logger.Info("Inference gateway created",
		zap.String("backend", gateway.Backend()),
		zap.Int("rate_limit_per_minute", cfg.LLM.RateLimit),
		zap.Int("max_retries", cfg.LLM.MaxRetries),
	)

	// Use case services
	ranker := rank.New(cfg.Retrieval.RelevanceThreshold, cfg.Retrieval.TrustedBoost, cfg.Retrieval.TrustedSources)
	retrievalSvc := retrievaluc.New(embedSvc, index, ranker, logger).
		WithDefaults(cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxContextLength)
	ingestSvc := ingestuc.New(embedSvc, index, logger).WithMaxBatchSize(cfg.Index.MaxBatchSize)
	healthSvc := healthuc.New(provider, checker, index)

	// Create chi server
	server := chiTransport.NewServer(
		retrievalSvc, ingestSvc, gateway, index, healthSvc, embedSvc, cfg.Index.DataDir, logger,
	)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildBackend constructs the configured inference backend. The second return
// value is its health checker when the backend exposes one.
func buildBackend(cfg config.LLMConfig, logger *zap.Logger) (llmuc.Backend, healthuc.BackendChecker) {
	switch cfg.Backend {
	case "ollama":
		b := ollamaTransport.NewChatBackend(&ollamaTransport.ChatConfig{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
			Logger:  logger,
		})
		return b, b
	default:
		b := openaiTransport.NewChatBackend(&openaiTransport.ChatConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Logger:  logger,
		})
		return b, nil
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
