package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/domain"
	"github.com/rosevoul/recserve/internal/metrics"
)

// Generator is a generative text provider using the OpenAI-compatible chat API.
// Every call runs at temperature zero with a caller-supplied token cap; the
// caller's context deadline is the only wall-time bound.
type Generator struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// GeneratorConfig holds the generative provider settings.
type GeneratorConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Provider string
	Logger   *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generative provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Generator{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Generate implements domain.Generator.
func (g *Generator) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0,
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)

	duration := time.Since(start)

	if err != nil {
		metrics.GeneratorRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		return "", parseAPIError(err, domain.ErrGeneratorError, "generator")
	}

	if len(resp.Choices) == 0 {
		metrics.GeneratorRequestsTotal.WithLabelValues(g.provider, g.model, "error").Inc()
		return "", fmt.Errorf("empty generator response: %w", domain.ErrGeneratorError)
	}

	metrics.GeneratorRequestsTotal.WithLabelValues(g.provider, g.model, "success").Inc()
	metrics.GeneratorRequestDuration.WithLabelValues(g.provider, g.model).Observe(duration.Seconds())

	g.logger.Debug("Generator request completed",
		zap.String("provider", g.provider),
		zap.String("model", g.model),
		zap.Duration("duration", duration),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
