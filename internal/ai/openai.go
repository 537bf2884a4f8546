package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/liao/bookchat/internal/rag"
)

var (
	_ rag.Embedder  = (*OpenAIClient)(nil)
	_ rag.Generator = (*OpenAIClient)(nil)
)

// OpenAIOptions OpenAI 兼容接口的参数。查询和文档可以配置不同的 embedding 模型。
type OpenAIOptions struct {
	APIKey                 string
	BaseURL                string
	ChatModel              string
	QueryEmbeddingModel    string
	DocumentEmbeddingModel string
	RPMLimit               int
}

// OpenAIClient 备选的模型提供方
type OpenAIClient struct {
	client     openai.Client
	chatModel  string
	queryModel string
	docModel   string
	limiter    *rate.Limiter
}

func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// SDK 默认会重试，这里关掉，失败直接上抛
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAIClient{
		client:     openai.NewClient(reqOpts...),
		chatModel:  opts.ChatModel,
		queryModel: opts.QueryEmbeddingModel,
		docModel:   opts.DocumentEmbeddingModel,
		limiter:    newLimiter(opts.RPMLimit),
	}
}

func (c *OpenAIClient) Embed(ctx context.Context, texts []string, mode rag.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := wait(ctx, c.limiter); err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbedding, err)
	}

	model := c.docModel
	if mode == rag.ModeQuery {
		model = c.queryModel
	}

	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s embed with %s: %v", rag.ErrEmbedding, mode, model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", rag.ErrEmbedding, len(resp.Data), len(texts))
	}

	// 按 index 放回原位，不依赖返回顺序
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(texts) || vectors[i] != nil {
			return nil, fmt.Errorf("%w: unexpected embedding index %d", rag.ErrEmbedding, d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		vectors[i] = v
	}
	if err := sameDims(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	if err := wait(ctx, c.limiter); err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrGeneration, err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate with %s: %v", rag.ErrGeneration, c.chatModel, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty response from %s", rag.ErrGeneration, c.chatModel)
	}
	slog.Debug("generated reply", "model", c.chatModel)
	return resp.Choices[0].Message.Content, nil
}
