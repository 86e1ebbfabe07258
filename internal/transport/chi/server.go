// Package chi exposes the RAG core over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
	"github.com/exportdesk/ragcore/internal/domain/prompt"
	"github.com/exportdesk/ragcore/internal/repository/vectorindex"
	embeddinguc "github.com/exportdesk/ragcore/internal/usecase/embedding"
	healthuc "github.com/exportdesk/ragcore/internal/usecase/health"
	ingestuc "github.com/exportdesk/ragcore/internal/usecase/ingest"
	llmuc "github.com/exportdesk/ragcore/internal/usecase/llm"
	retrievaluc "github.com/exportdesk/ragcore/internal/usecase/retrieval"
)

// ErrorCode identifies an API error category.
type ErrorCode string

// API error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeNotFound          ErrorCode = "not_found"
	CodeDimensionMismatch ErrorCode = "dimension_mismatch"
	CodeIndexNotReady     ErrorCode = "index_not_ready"
	CodeIndexArtifact     ErrorCode = "index_artifact_missing"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeUpstreamAuth      ErrorCode = "upstream_auth_failed"
	CodeUnsupportedModel  ErrorCode = "unsupported_model"
	CodeProviderError     ErrorCode = "provider_error"
	CodeMalformedOutput   ErrorCode = "malformed_structured_output"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the HTTP API to the use case services.
type Server struct {
	retrieval     *retrievaluc.Service
	ingest        *ingestuc.Service
	gateway       *llmuc.Gateway
	index         *vectorindex.Index
	health        *healthuc.Service
	cache         EmbeddingCache
	dataDir       string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// EmbeddingCache is the consumer contract for cache endpoints.
type EmbeddingCache interface {
	ClearCache()
	CacheStats() embeddinguc.CacheStats
}

// NewServer creates an HTTP API server.
func NewServer(
	retrieval *retrievaluc.Service,
	ingest *ingestuc.Service,
	gateway *llmuc.Gateway,
	index *vectorindex.Index,
	health *healthuc.Service,
	cache EmbeddingCache,
	dataDir string,
	logger *zap.Logger,
) *Server {
	s := &Server{
		retrieval: retrieval,
		ingest:    ingest,
		gateway:   gateway,
		index:     index,
		health:    health,
		cache:     cache,
		dataDir:   dataDir,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		rateLimitedHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, CodeDimensionMismatch),
		sentinelHandler(domain.ErrIndexNotInitialized, http.StatusConflict, CodeIndexNotReady),
		sentinelHandler(domain.ErrIndexArtifactMissing, http.StatusConflict, CodeIndexArtifact),
		sentinelHandler(domain.ErrAuth, http.StatusBadGateway, CodeUpstreamAuth),
		sentinelHandler(domain.ErrUnsupportedModel, http.StatusBadRequest, CodeUnsupportedModel),
		sentinelHandler(domain.ErrMalformedStructuredOutput, http.StatusBadGateway, CodeMalformedOutput),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrLLMProvider, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrTransient, http.StatusBadGateway, CodeProviderError),
	}
	return s
}

// Routes mounts all handlers onto a router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/answer", s.handleAnswer)
		r.Post("/extract", s.handleExtract)
		r.Post("/documents", s.handleIngest)
		r.Get("/documents", s.handleBrowse)
		r.Post("/index/save", s.handleSave)
		r.Post("/index/load", s.handleLoad)
		r.Post("/index/rebuild", s.handleRebuild)
		r.Post("/cache/clear", s.handleCacheClear)
		r.Get("/cache/stats", s.handleCacheStats)
	})
}

// --- DTOs ---

type documentJSON struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	Metadata       domain.Metadata `json:"metadata,omitempty"`
	RelevanceScore *float64        `json:"relevance_score,omitempty"`
}

func toDocumentJSON(docs []domain.Document) []documentJSON {
	out := make([]documentJSON, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentJSON{
			ID:             d.ID,
			Content:        d.Content,
			Metadata:       d.Metadata,
			RelevanceScore: d.RelevanceScore,
		})
	}
	return out
}

type searchRequest struct {
	Query               string         `json:"query"`
	TopK                int            `json:"top_k"`
	Filters             domain.Filters `json:"filters"`
	BoostTrustedSources bool           `json:"boost_trusted_sources"`
}

type searchResponse struct {
	Documents []documentJSON `json:"documents"`
}

type answerRequest struct {
	Prompt              string         `json:"prompt"`
	Query               string         `json:"query"`
	TopK                int            `json:"top_k"`
	Filters             domain.Filters `json:"filters"`
	BoostTrustedSources bool           `json:"boost_trusted_sources"`
	IncludeCitations    bool           `json:"include_citations"`
	MaxContextLength    int            `json:"max_context_length"`
	SystemPrompt        string         `json:"system_prompt"`
	Temperature         float32        `json:"temperature"`
	MaxTokens           int            `json:"max_tokens"`
}

type answerResponse struct {
	Answer  string          `json:"answer"`
	Sources []prompt.Source `json:"sources"`
}

type extractRequest struct {
	Prompt       string            `json:"prompt"`
	Schema       map[string]string `json:"schema"`
	SystemPrompt string            `json:"system_prompt"`
}

type ingestRequest struct {
	Documents []struct {
		ID       string          `json:"id"`
		Content  string          `json:"content"`
		Metadata domain.Metadata `json:"metadata"`
	} `json:"documents"`
}

type ingestItemJSON struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	docs, err := s.retrieval.RetrieveDocuments(
		r.Context(), req.Query, req.TopK, req.Filters, req.BoostTrustedSources,
	)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Documents: toDocumentJSON(docs)})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "prompt is required")
		return
	}

	enhanced, sources, err := s.retrieval.GenerateWithContext(r.Context(), retrievaluc.ContextRequest{
		Prompt:              req.Prompt,
		Query:               req.Query,
		TopK:                req.TopK,
		Filters:             req.Filters,
		BoostTrustedSources: req.BoostTrustedSources,
		IncludeCitations:    req.IncludeCitations,
		MaxContextLength:    req.MaxContextLength,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	answer, err := s.gateway.GenerateWithRetry(r.Context(), enhanced, 0, llmuc.Options{
		SystemPrompt: req.SystemPrompt,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{Answer: answer, Sources: sources})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" || len(req.Schema) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "prompt and schema are required")
		return
	}

	schema := make(llmuc.Schema, len(req.Schema))
	for name, t := range req.Schema {
		ft := llmuc.FieldType(t)
		switch ft {
		case llmuc.FieldString, llmuc.FieldNumber, llmuc.FieldBoolean:
			schema[name] = ft
		default:
			writeError(w, http.StatusBadRequest, CodeValidationFailed,
				fmt.Sprintf("unknown field type %q for %q", t, name))
			return
		}
	}

	parsed, err := s.gateway.GenerateStructured(r.Context(), req.Prompt, schema, llmuc.Options{
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, parsed)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "documents are required")
		return
	}

	records := make([]ingestuc.Record, 0, len(req.Documents))
	for _, d := range req.Documents {
		records = append(records, ingestuc.Record{ID: d.ID, Content: d.Content, Metadata: d.Metadata})
	}

	results, err := s.ingest.Ingest(r.Context(), records)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]ingestItemJSON, 0, len(results))
	for _, res := range results {
		item := ingestItemJSON{ID: res.ID, Status: string(res.Status)}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	filters := make(domain.Filters)
	for key, values := range r.URL.Query() {
		filters[key] = values
	}

	docs := s.retrieval.SearchByMetadata(filters)
	writeJSON(w, http.StatusOK, searchResponse{Documents: toDocumentJSON(docs)})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Save(s.dataDir); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": s.index.Len()})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.index.Load(s.dataDir); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": s.index.Len()})
}

func (s *Server) handleRebuild(w http.ResponseWriter, _ *http.Request) {
	s.index.Rebuild()
	writeJSON(w, http.StatusOK, map[string]any{"documents": s.index.Len()})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	s.cache.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.CacheStats())
}

// --- Error mapping ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// rateLimitedHandler adds Retry-After before the generic 429 body.
func rateLimitedHandler(w http.ResponseWriter, err error, msg string) bool {
	var rle *domain.RateLimitedError
	if !errors.As(err, &rle) {
		return false
	}
	seconds := int(math.Ceil(rle.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, http.StatusTooManyRequests, CodeRateLimited, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := err.Error()
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
