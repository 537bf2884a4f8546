package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/philippgille/chromem-go"
)

const (
	metaIndex  = "index"
	metaSource = "source"

	// 向量维度记在库目录下的旁路文件里，chromem 加载时会跳过目录下的普通文件
	dimFileSuffix = ".dim"
)

var errPrecomputed = errors.New("store only accepts precomputed embeddings")

// Store 基于 chromem-go 的持久化向量存储，余弦相似度。
// chromem 的 Collection 自带读写锁，多个请求可以并发查询。
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	dim        atomic.Int64
	dimPath    string
}

// OpenStore 打开 dir 下的持久化库。create 为 false 时集合必须已经存在（服务端只读打开）。
func OpenStore(dir, name string, create bool) (*Store, error) {
	if dir == "" {
		dir = "./chromem-go" // 与 chromem 的默认目录一致
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("%w: open vector db %s: %v", ErrConfig, dir, err)
	}

	// 向量都由 Embedder 预先算好，集合自身不做 embedding
	embedFunc := func(context.Context, string) ([]float32, error) {
		return nil, errPrecomputed
	}

	var col *chromem.Collection
	if create {
		col, err = db.GetOrCreateCollection(name, nil, embedFunc)
		if err != nil {
			return nil, fmt.Errorf("%w: get/create collection %s: %v", ErrConfig, name, err)
		}
	} else {
		col = db.GetCollection(name, embedFunc)
		if col == nil {
			return nil, fmt.Errorf("%w: collection %q not found in %s, run ingest first", ErrConfig, name, dir)
		}
	}

	s := &Store{
		db:         db,
		collection: col,
		dimPath:    filepath.Join(dir, url.PathEscape(name)+dimFileSuffix),
	}
	if err := s.loadDim(); err != nil {
		return nil, err
	}

	slog.Info("vector store loaded", "dir", dir, "collection", name, "count", col.Count(), "dim", s.dim.Load())
	return s, nil
}

func (s *Store) loadDim() error {
	data, err := os.ReadFile(s.dimPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read embedding dimension: %v", ErrConfig, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n <= 0 {
		return fmt.Errorf("%w: invalid embedding dimension in %s: %q", ErrConfig, s.dimPath, data)
	}
	s.dim.Store(int64(n))
	return nil
}

// setDim 第一次确定维度时记下并落盘，之后的调用不生效
func (s *Store) setDim(n int) error {
	if !s.dim.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if err := os.WriteFile(s.dimPath, []byte(strconv.Itoa(n)+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: persist embedding dimension: %v", ErrStore, err)
	}
	return nil
}

// Upsert 按 ID 写入或覆盖。同一个库内所有向量维度必须一致，重新打开后也一样。
func (s *Store) Upsert(ctx context.Context, chunks []EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	dim, err := s.checkDims(chunks)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		meta := map[string]string{metaIndex: strconv.Itoa(c.Index)}
		if c.Source != "" {
			meta[metaSource] = c.Source
		}
		docs = append(docs, chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: c.Vector,
			Metadata:  meta,
		})
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("%w: add documents: %v", ErrStore, err)
	}
	return s.setDim(dim)
}

// checkDims 返回这批向量的维度，与库里已有的维度不一致时报错
func (s *Store) checkDims(chunks []EmbeddedChunk) (int, error) {
	want := int(s.dim.Load())
	for _, c := range chunks {
		n := len(c.Vector)
		if n == 0 {
			return 0, fmt.Errorf("%w: chunk %s has empty vector", ErrStore, c.ID)
		}
		if want == 0 {
			want = n
			continue
		}
		if n != want {
			return 0, fmt.Errorf("%w: chunk %s has dimension %d, store holds %d", ErrStore, c.ID, n, want)
		}
	}
	return want, nil
}

// ExistingIDs 返回 ids 中已经在库里的那部分。
// 维度还不知道时（旧库没有旁路文件）顺便从已有文档里取。
func (s *Store) ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// GetByID 只在 ID 不存在时返回错误
		doc, err := s.collection.GetByID(ctx, id)
		if err != nil {
			continue
		}
		existing[id] = struct{}{}
		if s.dim.Load() == 0 && len(doc.Embedding) > 0 {
			if err := s.setDim(len(doc.Embedding)); err != nil {
				return nil, err
			}
		}
	}
	return existing, nil
}

// Query 按向量检索最相似的 k 条，相似度降序
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", ErrConfig, k)
	}
	if want := int(s.dim.Load()); want != 0 && len(vector) != want {
		return nil, fmt.Errorf("%w: query vector has dimension %d, store holds %d", ErrStore, len(vector), want)
	}

	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	docs, err := s.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: query vectors: %v", ErrStore, err)
	}

	results := make([]Result, 0, len(docs))
	for _, d := range docs {
		results = append(results, Result{
			ID:         d.ID,
			Content:    d.Content,
			Similarity: d.Similarity,
			Metadata:   d.Metadata,
		})
	}
	return results, nil
}

// Count 返回文档数量
func (s *Store) Count() int {
	return s.collection.Count()
}
