// Package ollama provides an inference backend over the Ollama HTTP API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
	"github.com/exportdesk/ragcore/internal/metrics"
)

const (
	defaultBaseURL = "http://localhost:11434"
	chatEndpoint   = "/api/chat"
)

// ChatBackend is an inference backend using a local or remote Ollama server.
type ChatBackend struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

// ChatConfig holds the Ollama backend settings.
type ChatConfig struct {
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewChatBackend creates an Ollama chat backend.
func NewChatBackend(cfg *ChatConfig) *ChatBackend {
	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &ChatBackend{
		baseURL:    baseURL,
		model:      cfg.Model,
		httpClient: &http.Client{},
		logger:     cfg.Logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
	Error           string      `json:"error"`
}

// Name implements domain.CompletionBackend.
func (b *ChatBackend) Name() string { return "ollama" }

// Complete implements domain.CompletionBackend.
func (b *ChatBackend) Complete(
	ctx context.Context, req domain.CompletionRequest,
) (domain.CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}
	if model == "" {
		return domain.CompletionResult{}, fmt.Errorf("ollama model is required: %w", domain.ErrUnsupportedModel)
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	body, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options:  options,
	})
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, b.baseURL+chatEndpoint, bytes.NewReader(body),
	)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(b.Name(), "error").Inc()
		return domain.CompletionResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		metrics.LLMRequestsTotal.WithLabelValues(b.Name(), "error").Inc()
		raw, _ := io.ReadAll(resp.Body)
		return domain.CompletionResult{}, classifyStatusError(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(b.Name(), "error").Inc()
		return domain.CompletionResult{}, fmt.Errorf("decode chat response: %v: %w", err, domain.ErrLLMProvider)
	}
	if out.Error != "" {
		metrics.LLMRequestsTotal.WithLabelValues(b.Name(), "error").Inc()
		return domain.CompletionResult{}, fmt.Errorf("ollama error: %s: %w", out.Error, domain.ErrLLMProvider)
	}

	metrics.LLMRequestsTotal.WithLabelValues(b.Name(), "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(b.Name()).Observe(duration.Seconds())
	if out.EvalCount > 0 {
		metrics.LLMTokensTotal.WithLabelValues(b.Name(), "prompt").Add(float64(out.PromptEvalCount))
		metrics.LLMTokensTotal.WithLabelValues(b.Name(), "completion").Add(float64(out.EvalCount))
	}

	return domain.CompletionResult{
		Text:             out.Message.Content,
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}, nil
}

// HealthCheck verifies the Ollama server is reachable.
func (b *ChatBackend) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health status %d", resp.StatusCode)
	}
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("ollama request timed out: %w", domain.ErrTransient)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("ollama connection failed: %v: %w", netErr, domain.ErrTransient)
	}
	return fmt.Errorf("ollama request failed: %v: %w", err, domain.ErrTransient)
}

func classifyStatusError(status int, detail string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("ollama error %d: %s: %w", status, detail, domain.ErrAuth)
	case status == http.StatusNotFound:
		// Ollama returns 404 for models that are not pulled
		return fmt.Errorf("ollama error %d: %s: %w", status, detail, domain.ErrUnsupportedModel)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("ollama error %d: %s: %w", status, detail, domain.ErrTransient)
	}
	return fmt.Errorf("ollama error %d: %s: %w", status, detail, domain.ErrLLMProvider)
}
