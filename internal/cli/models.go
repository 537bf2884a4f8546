package cli

import (
	"context"
	"log/slog"

	"github.com/liao/bookchat/internal/ai"
	"github.com/liao/bookchat/internal/config"
	"github.com/liao/bookchat/internal/rag"
)

type modelClient interface {
	rag.Embedder
	rag.Generator
}

// newModelClient 按 provider 创建模型客户端，调用前需要已经校验过凭据
func newModelClient(ctx context.Context, cfg *config.Config) (modelClient, error) {
	if cfg.Provider == config.ProviderOpenAI {
		slog.Info("AI client initialized", "provider", cfg.Provider, "model", cfg.OpenAI.ChatModel)
		return ai.NewOpenAIClient(ai.OpenAIOptions{
			APIKey:                 cfg.OpenAI.APIKey,
			BaseURL:                cfg.OpenAI.BaseURL,
			ChatModel:              cfg.OpenAI.ChatModel,
			QueryEmbeddingModel:    cfg.OpenAI.QueryEmbeddingModel,
			DocumentEmbeddingModel: cfg.OpenAI.DocumentEmbeddingModel,
			RPMLimit:               cfg.OpenAI.RPMLimit,
		}), nil
	}

	c, err := ai.NewClient(ctx, ai.Options{
		APIKey:          cfg.Gemini.APIKey,
		ChatModel:       cfg.Gemini.ChatModel,
		EmbeddingModel:  cfg.Gemini.EmbeddingModel,
		EmbeddingDims:   cfg.Gemini.EmbeddingDimensions,
		Temperature:     cfg.Gemini.Temperature,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		RPMLimit:        cfg.Gemini.RPMLimit,
		BaseURL:         cfg.Gemini.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("AI client initialized", "provider", cfg.Provider, "model", cfg.Gemini.ChatModel)
	return c, nil
}
