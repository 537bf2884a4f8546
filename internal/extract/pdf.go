package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/liao/bookchat/internal/rag"
)

// PDF 逐页提取文本，每页后面追加一个空格。任何一页失败整个文件都算失败。
func PDF(_ context.Context, path string) (text string, err error) {
	// ledongthuc/pdf 遇到损坏的文件会 panic
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("%w: parse pdf %s: %v", rag.ErrExtraction, path, rec)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open pdf %s: %v", rag.ErrExtraction, path, err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d of %s: %v", rag.ErrExtraction, i, path, err)
		}
		b.WriteString(pageText)
		b.WriteString(" ")
	}
	return b.String(), nil
}
