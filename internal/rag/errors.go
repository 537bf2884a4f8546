package rag

import "errors"

// 错误类别，用 fmt.Errorf("...: %w") 包装，调用方用 errors.Is 判断
var (
	// ErrConfig 配置缺失或存储不可用，启动阶段致命
	ErrConfig = errors.New("configuration error")

	// ErrExtraction 源文档无法读取或解析
	ErrExtraction = errors.New("extraction error")

	// ErrEmbedding 上游 embedding 调用失败，不重试
	ErrEmbedding = errors.New("embedding error")

	// ErrGeneration 上游生成调用失败
	ErrGeneration = errors.New("generation error")

	// ErrStore 向量存储读写失败
	ErrStore = errors.New("vector store error")

	// ErrInvalidRequest 请求不合法，在进入流水线之前拒绝
	ErrInvalidRequest = errors.New("invalid request")
)
