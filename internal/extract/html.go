package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/liao/bookchat/internal/rag"
)

// HTML 提取正文文本，去掉脚本和样式，每个非空行保留为一行
func HTML(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open file: %v", rag.ErrExtraction, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("%w: parse HTML %s: %v", rag.ErrExtraction, path, err)
	}

	doc.Find("script, style, noscript, template").Remove()

	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	// 块级元素之间补换行，避免相邻段落的文字粘在一起
	sel.Find("p, div, li, h1, h2, h3, h4, h5, h6, pre, tr, br").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	return collapseLines(sel.Text()), nil
}

func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
