package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/exportdesk/ragcore/internal/domain"
	"github.com/exportdesk/ragcore/internal/metrics"
)

// ChatBackend is an inference backend using the OpenAI-compatible chat API.
type ChatBackend struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// ChatConfig holds the chat backend settings.
type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewChatBackend creates an OpenAI-compatible chat backend.
func NewChatBackend(cfg *ChatConfig) *ChatBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &ChatBackend{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Name implements domain.CompletionBackend.
func (b *ChatBackend) Name() string { return "openai" }

// Complete implements domain.CompletionBackend.
func (b *ChatBackend) Complete(
	ctx context.Context, req domain.CompletionRequest,
) (domain.CompletionResult, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	start := time.Now()

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(b.Name(), "error").Inc()
		return domain.CompletionResult{}, classifyChatError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(b.Name(), "error").Inc()
		return domain.CompletionResult{}, fmt.Errorf("empty completion response: %w", domain.ErrLLMProvider)
	}

	metrics.LLMRequestsTotal.WithLabelValues(b.Name(), "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(b.Name()).Observe(duration.Seconds())
	if resp.Usage.TotalTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(b.Name(), "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokensTotal.WithLabelValues(b.Name(), "completion").Add(float64(resp.Usage.CompletionTokens))
	}

	return domain.CompletionResult{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// classifyChatError maps provider failures onto the retry taxonomy.
// Timeouts, connection failures, provider throttling (429), and 5xx are
// transient; credential and model errors are structural.
func classifyChatError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("completion timed out: %w", domain.ErrTransient)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("completion connection failed: %v: %w", netErr, domain.ErrTransient)
	}

	status := 0
	detail := err.Error()

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
		detail = apiErr.Message
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
		detail = string(reqErr.Body)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("completion API error %d: %s: %w", status, detail, domain.ErrAuth)
	case status == http.StatusNotFound:
		return fmt.Errorf("completion API error %d: %s: %w", status, detail, domain.ErrUnsupportedModel)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return fmt.Errorf("completion API error %d: %s: %w", status, detail, domain.ErrTransient)
	}

	return fmt.Errorf("completion request failed: %s: %w", detail, domain.ErrLLMProvider)
}
