package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Extractor 从单个文件中提取纯文本
type Extractor interface {
	Supports(path string) bool
	Extract(ctx context.Context, path string) (string, error)
}

// ChunkWriter 摄取流程对向量存储的读写句柄
type ChunkWriter interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	Upsert(ctx context.Context, chunks []EmbeddedChunk) error
	Count() int
}

// IngestReport 一次摄取的统计
type IngestReport struct {
	Files   int // 成功提取的文件数
	Skipped int // 提取失败被跳过的文件数
	Chunks  int // 切分出的块总数
	Added   int // 本次新写入的块数
	Total   int // 结束时库里的总数
}

type sourceText struct {
	name string
	text string
}

// Corpus 提取并切分完成、尚未写入向量库的块
type Corpus struct {
	Chunks  []Chunk
	Files   int // 成功提取的文件数
	Skipped int // 提取失败被跳过的文件数
}

// Ingestor 离线摄取：提取 → 切分 → 跳过已有 ID → 分批 embedding → 逐批写入
type Ingestor struct {
	extractor   Extractor
	chunker     *Chunker
	embedder    Embedder
	batchSize   int
	perDocument bool
}

func NewIngestor(extractor Extractor, chunker *Chunker, embedder Embedder, batchSize int, perDocument bool) *Ingestor {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Ingestor{
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		batchSize:   batchSize,
		perDocument: perDocument,
	}
}

// Load 提取并切分 dir 下（不递归）所有支持的文件，不接触向量库。
// 单个文件提取失败只记日志并跳过；一段文本都没有时返回 ErrExtraction。
func (in *Ingestor) Load(ctx context.Context, dir string) (*Corpus, error) {
	corpus := &Corpus{}
	docs, err := in.readDocuments(ctx, dir, corpus)
	if err != nil {
		return corpus, err
	}

	corpus.Chunks = in.chunk(docs)
	slog.Info("split text into chunks",
		"chunks", len(corpus.Chunks),
		"chunk_size", in.chunker.Size(),
		"chunk_overlap", in.chunker.Overlap(),
		"per_document", in.perDocument)
	return corpus, nil
}

// Store 把 corpus 中库里还没有的块分批 embedding 后写入。
// embedding 或写入失败立即中止，已写入的批次保留，再次运行会从第一个未写入的 ID 继续。
func (in *Ingestor) Store(ctx context.Context, store ChunkWriter, corpus *Corpus) (*IngestReport, error) {
	report := &IngestReport{Files: corpus.Files, Skipped: corpus.Skipped, Chunks: len(corpus.Chunks)}
	chunks := corpus.Chunks

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	existing, err := store.ExistingIDs(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("check existing ids: %w", err)
	}

	pending := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := existing[c.ID]; !ok {
			pending = append(pending, c)
		}
	}

	if len(pending) == 0 {
		slog.Info("no new chunks to add, database is up-to-date")
		report.Total = store.Count()
		return report, nil
	}
	slog.Info("found new chunks", "count", len(pending), "existing", len(existing))

	batches := (len(pending) + in.batchSize - 1) / in.batchSize
	for b := 0; b < batches; b++ {
		start := b * in.batchSize
		end := min(start+in.batchSize, len(pending))
		batch := pending[start:end]

		slog.Info("processing batch", "batch", b+1, "of", batches, "size", len(batch))
		if err := in.embedAndStore(ctx, store, batch); err != nil {
			report.Total = store.Count()
			return report, fmt.Errorf("batch %d/%d: %w", b+1, batches, err)
		}
		report.Added += len(batch)
	}

	report.Total = store.Count()
	slog.Info("ingestion complete", "added", report.Added, "total", report.Total)
	return report, nil
}

// Run 依次执行 Load 和 Store
func (in *Ingestor) Run(ctx context.Context, store ChunkWriter, dir string) (*IngestReport, error) {
	corpus, err := in.Load(ctx, dir)
	if err != nil {
		return &IngestReport{Files: corpus.Files, Skipped: corpus.Skipped}, err
	}
	return in.Store(ctx, store, corpus)
}

func (in *Ingestor) readDocuments(ctx context.Context, dir string, corpus *Corpus) ([]sourceText, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read source dir %s: %v", ErrConfig, dir, err)
	}

	slog.Info("loading documents", "dir", dir)
	var docs []sourceText
	hasText := false
	// ReadDir 已按文件名排序，保证 ID 稳定
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if !in.extractor.Supports(path) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slog.Info("reading document", "file", e.Name())
		text, err := in.extractor.Extract(ctx, path)
		if err != nil {
			slog.Error("read document failed, skipping", "file", e.Name(), "error", err)
			corpus.Skipped++
			continue
		}
		corpus.Files++
		if strings.TrimSpace(text) != "" {
			hasText = true
		}
		docs = append(docs, sourceText{name: e.Name(), text: text})
	}

	if !hasText {
		return nil, fmt.Errorf("%w: no text extracted from documents in %s", ErrExtraction, dir)
	}
	return docs, nil
}

// chunk 默认把所有文档拼成一个整体切分，ID 为 doc_<i>；
// perDocument 时每个文件单独切分，ID 为 <文件名>#<i>
func (in *Ingestor) chunk(docs []sourceText) []Chunk {
	if !in.perDocument {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.text
		}
		chunks := in.chunker.Split(strings.Join(texts, "\n\n"))
		for i := range chunks {
			chunks[i].ID = fmt.Sprintf("doc_%d", chunks[i].Index)
		}
		return chunks
	}

	var all []Chunk
	for _, d := range docs {
		chunks := in.chunker.Split(d.text)
		for i := range chunks {
			chunks[i].ID = fmt.Sprintf("%s#%d", d.name, chunks[i].Index)
			chunks[i].Source = d.name
		}
		all = append(all, chunks...)
	}
	return all
}

func (in *Ingestor) embedAndStore(ctx context.Context, store ChunkWriter, batch []Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := in.embedder.Embed(ctx, texts, ModeDocument)
	if err != nil {
		if !errors.Is(err, ErrEmbedding) {
			err = fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		return err
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(batch))
	}

	embedded := make([]EmbeddedChunk, len(batch))
	for i, c := range batch {
		embedded[i] = EmbeddedChunk{Chunk: c, Vector: vectors[i]}
	}
	return store.Upsert(ctx, embedded)
}
