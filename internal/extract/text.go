package extract

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/liao/bookchat/internal/rag"
)

// Text 读取纯文本/Markdown，统一换行符为 \n
func Text(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open file: %v", rag.ErrExtraction, err)
	}
	defer f.Close()

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024) // 1MB buffer

	first := true
	for scanner.Scan() {
		if !first {
			b.WriteString("\n")
		}
		first = false
		b.WriteString(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: scan %s: %v", rag.ErrExtraction, path, err)
	}
	return b.String(), nil
}
