// Package extract 从源文档中提取纯文本，按扩展名选择解析器。
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/liao/bookchat/internal/rag"
)

// Func 提取单个文件的文本
type Func func(ctx context.Context, path string) (string, error)

// Registry 扩展名到解析器的映射，实现 rag.Extractor
type Registry struct {
	byExt map[string]Func
}

var _ rag.Extractor = (*Registry)(nil)

// NewRegistry 默认支持 PDF、HTML、纯文本和 Markdown
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Func)}
	r.Register(".pdf", PDF)
	r.Register(".html", HTML)
	r.Register(".htm", HTML)
	r.Register(".txt", Text)
	r.Register(".md", Text)
	return r
}

// Register 扩展名不区分大小写，需要带点
func (r *Registry) Register(ext string, fn Func) {
	r.byExt[strings.ToLower(ext)] = fn
}

func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions 已注册的扩展名，排序后返回
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (r *Registry) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fn, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("%w: unsupported file type %q", rag.ErrExtraction, filepath.Ext(path))
	}
	return fn(ctx, path)
}
