package rag

import "context"

// Chunk 一段连续的源文本，检索的最小单位
type Chunk struct {
	ID    string
	Index int
	Text  string
	// Start/End 为在被切分文本中的 rune 偏移，[Start, End)
	Start int
	End   int
	// Source 按文件切分时记录来源文件名，拼接模式下为空
	Source string
}

// EmbeddedChunk 带向量的 Chunk
type EmbeddedChunk struct {
	Chunk
	Vector []float32
}

// Result 检索结果，按相似度降序
type Result struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

// ChatExchange 一次问答，只在请求内存在，不落盘
type ChatExchange struct {
	Query   string
	Context []string
	Answer  string
}

// EmbedMode 区分查询和文档两条 embedding 调用路径
type EmbedMode int

const (
	ModeQuery EmbedMode = iota
	ModeDocument
)

func (m EmbedMode) String() string {
	switch m {
	case ModeQuery:
		return "query"
	case ModeDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Embedder 把文本转成定长向量，每个输入对应一个输出，顺序一致
type Embedder interface {
	Embed(ctx context.Context, texts []string, mode EmbedMode) ([][]float32, error)
}

// Generator 根据 prompt 生成回答
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
