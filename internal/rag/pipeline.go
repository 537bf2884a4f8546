package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultTopK 每次检索的块数
const DefaultTopK = 5

// ChunkSearcher 查询流程对向量存储的只读句柄
type ChunkSearcher interface {
	Query(ctx context.Context, vector []float32, k int) ([]Result, error)
}

// Pipeline 在线问答：embedding 问题 → 检索 top-K → 拼 prompt → 生成。
// 每个请求内严格串行，Pipeline 本身无状态，可被多个请求并发使用。
type Pipeline struct {
	embedder  Embedder
	store     ChunkSearcher
	generator Generator
	topK      int
	role      string
}

func NewPipeline(embedder Embedder, store ChunkSearcher, generator Generator, topK int, role string) *Pipeline {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Pipeline{
		embedder:  embedder,
		store:     store,
		generator: generator,
		topK:      topK,
		role:      role,
	}
}

// Retrieve 根据问题检索相关的文档块，按相似度降序
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]Result, error) {
	vectors, err := p.embedder.Embed(ctx, []string{query}, ModeQuery)
	if err != nil {
		if !errors.Is(err, ErrEmbedding) {
			err = fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected 1 query vector, got %d", ErrEmbedding, len(vectors))
	}

	results, err := p.store.Query(ctx, vectors[0], p.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	slog.Debug("retrieved context", "query", query, "count", len(results))
	return results, nil
}

// Answer 回答一个问题。任何一步失败都返回错误，不返回部分结果。
func (p *Pipeline) Answer(ctx context.Context, query string) (*ChatExchange, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidRequest)
	}

	results, err := p.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	docs := make([]string, 0, len(results))
	for _, r := range results {
		docs = append(docs, r.Content)
	}

	prompt := BuildPrompt(p.role, query, docs)
	answer, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		if !errors.Is(err, ErrGeneration) {
			err = fmt.Errorf("%w: %v", ErrGeneration, err)
		}
		return nil, err
	}

	return &ChatExchange{Query: query, Context: docs, Answer: answer}, nil
}
