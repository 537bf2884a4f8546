package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

// fakeEmbedder 字母频率向量，额外一维常数避免零向量
type fakeEmbedder struct {
	mu         sync.Mutex
	modes      []EmbedMode
	batchSizes []int
	texts      []string
	failOnCall int // 第几次调用失败，从 1 开始，0 表示不失败
	extra      int // 每次多返回的向量个数
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, mode EmbedMode) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.modes = append(f.modes, mode)
	if f.failOnCall > 0 && len(f.modes) == f.failOnCall {
		return nil, errors.New("upstream returned 429 RESOURCE_EXHAUSTED")
	}
	f.batchSizes = append(f.batchSizes, len(texts))
	f.texts = append(f.texts, texts...)

	out := make([][]float32, 0, len(texts)+f.extra)
	for _, t := range texts {
		out = append(out, letterVector(t))
	}
	for i := 0; i < f.extra; i++ {
		out = append(out, letterVector("x"))
	}
	return out, nil
}

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modes)
}

func letterVector(text string) []float32 {
	v := make([]float32, 27)
	v[26] = 1
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}

// echoGenerator 原样返回 prompt，答案里必然包含检索到的上下文
type echoGenerator struct {
	prompts []string
	err     error
}

func (g *echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return prompt, nil
}

// fileExtractor 读 .txt/.pdf 原文，内容以 %CORRUPT 开头的视为损坏
type fileExtractor struct{}

func (fileExtractor) Supports(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".pdf"
}

func (fileExtractor) Extract(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(string(data), "%CORRUPT") {
		return "", errors.New("malformed document")
	}
	return string(data), nil
}

type fakeSearcher struct {
	results []Result
	err     error
	gotK    int
	gotVec  []float32
}

func (s *fakeSearcher) Query(_ context.Context, vector []float32, k int) ([]Result, error) {
	s.gotK = k
	s.gotVec = vector
	return s.results, s.err
}

func writeFiles(dir string, files map[string]string) error {
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func wordsText(prefix string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(prefix)
		b.WriteString(" ")
		b.WriteRune(rune('a' + i%26))
		b.WriteString(". ")
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}
