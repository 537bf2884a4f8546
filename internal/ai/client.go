package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/liao/bookchat/internal/rag"
)

// Gemini embedding 的任务类型，查询和文档走两条不同的调用路径
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

var (
	_ rag.Embedder  = (*Client)(nil)
	_ rag.Generator = (*Client)(nil)
)

// Options Gemini 客户端参数
type Options struct {
	APIKey          string
	ChatModel       string
	EmbeddingModel  string
	EmbeddingDims   int32 // 0 使用模型默认维度
	Temperature     float32
	MaxOutputTokens int32
	RPMLimit        int // 0 不限速
	BaseURL         string
}

// Client Gemini 客户端，实现 rag.Embedder 和 rag.Generator。
// 失败不重试，直接返回。
type Client struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	embedDims  int32
	temp       float32
	maxTokens  int32
	limiter    *rate.Limiter
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %v", rag.ErrConfig, err)
	}

	return &Client{
		client:     client,
		chatModel:  opts.ChatModel,
		embedModel: opts.EmbeddingModel,
		embedDims:  opts.EmbeddingDims,
		temp:       opts.Temperature,
		maxTokens:  opts.MaxOutputTokens,
		limiter:    newLimiter(opts.RPMLimit),
	}, nil
}

// Embed 一次调用处理整批文本，返回的向量与输入一一对应
func (c *Client) Embed(ctx context.Context, texts []string, mode rag.EmbedMode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := wait(ctx, c.limiter); err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbedding, err)
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	cfg := &genai.EmbedContentConfig{TaskType: taskType(mode)}
	if c.embedDims > 0 {
		cfg.OutputDimensionality = genai.Ptr(c.embedDims)
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, cfg)
	if err != nil {
		if isQuotaError(err) {
			slog.Warn("embedding quota exceeded", "model", c.embedModel, "mode", mode)
		}
		return nil, fmt.Errorf("%w: %s embed with %s: %v", rag.ErrEmbedding, mode, c.embedModel, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", rag.ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at %d", rag.ErrEmbedding, i)
		}
		vectors[i] = e.Values
	}
	if err := sameDims(vectors); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Generate 生成回答，原样返回模型文本
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := wait(ctx, c.limiter); err != nil {
		return "", fmt.Errorf("%w: %v", rag.ErrGeneration, err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temp),
		MaxOutputTokens: c.maxTokens,
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.chatModel,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, cfg)
	if err != nil {
		if isQuotaError(err) {
			slog.Warn("model quota exceeded", "model", c.chatModel)
		}
		return "", fmt.Errorf("%w: generate with %s: %v", rag.ErrGeneration, c.chatModel, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response from %s", rag.ErrGeneration, c.chatModel)
	}
	slog.Debug("generated reply", "model", c.chatModel)
	return text, nil
}

func taskType(mode rag.EmbedMode) string {
	if mode == rag.ModeQuery {
		return taskRetrievalQuery
	}
	return taskRetrievalDocument
}

func isQuotaError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED")
}

func sameDims(vectors [][]float32) error {
	for i := 1; i < len(vectors); i++ {
		if len(vectors[i]) != len(vectors[0]) {
			return fmt.Errorf("%w: embedding %d has dimension %d, expected %d",
				rag.ErrEmbedding, i, len(vectors[i]), len(vectors[0]))
		}
	}
	return nil
}
