package rag

import (
	"fmt"
	"strings"
)

// 从粗到细的切分点：段落、行、句子、词，最后按字符
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker 递归地按自然断点切分文本，相邻块之间保留 overlap 个字符的重叠。
// 长度按 rune 计算。
type Chunker struct {
	size       int
	overlap    int
	separators [][]rune
}

// NewChunker 要求 size > 0 且 0 <= overlap < size
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrConfig, size, overlap)
	}

	seps := make([][]rune, len(defaultSeparators))
	for i, s := range defaultSeparators {
		seps[i] = []rune(s)
	}
	return &Chunker{size: size, overlap: overlap, separators: seps}, nil
}

// Size 单块最大长度
func (c *Chunker) Size() int { return c.size }

// Overlap 相邻块的重叠长度
func (c *Chunker) Overlap() int { return c.overlap }

type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Split 切分文本。返回的 Chunk 只填了 Index、Text、Start、End，ID 由调用方分配。
// 块内文本不做 trim，只丢弃纯空白的块。
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	spans := c.split(runes, span{0, len(runes)}, c.separators)

	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		t := string(runes[s.start:s.end])
		if strings.TrimSpace(t) == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  t,
			Start: s.start,
			End:   s.end,
		})
	}
	return chunks
}

func (c *Chunker) split(text []rune, s span, seps [][]rune) []span {
	sep := seps[len(seps)-1]
	var rest [][]rune
	for i, candidate := range seps {
		if len(candidate) == 0 {
			sep = candidate
			break
		}
		if indexRunes(text[s.start:s.end], candidate) >= 0 {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var out, good []span
	for _, p := range cutAfter(text, s, sep) {
		if p.len() < c.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, c.split(text, p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(good)...)
	}
	return out
}

// merge 把相邻小片贪心合并到不超过 size，切出一块后保留末尾不超过 overlap 的片段作为下一块开头
func (c *Chunker) merge(pieces []span) []span {
	var out, cur []span
	total := 0
	for _, p := range pieces {
		n := p.len()
		if total+n > c.size && len(cur) > 0 {
			out = append(out, span{cur[0].start, cur[len(cur)-1].end})
			for total > c.overlap || (total+n > c.size && total > 0) {
				total -= cur[0].len()
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += n
	}
	if len(cur) > 0 {
		out = append(out, span{cur[0].start, cur[len(cur)-1].end})
	}
	return out
}

// cutAfter 按 sep 切分，sep 留在它结束的那一片末尾；sep 为空时逐字符切
func cutAfter(text []rune, s span, sep []rune) []span {
	if len(sep) == 0 {
		out := make([]span, 0, s.len())
		for i := s.start; i < s.end; i++ {
			out = append(out, span{i, i + 1})
		}
		return out
	}

	var out []span
	start := s.start
	for i := s.start; i+len(sep) <= s.end; {
		if hasPrefixRunes(text[i:s.end], sep) {
			end := i + len(sep)
			out = append(out, span{start, end})
			start, i = end, end
			continue
		}
		i++
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

func indexRunes(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if hasPrefixRunes(s[i:], sub) {
			return i
		}
	}
	return -1
}

func hasPrefixRunes(s, prefix []rune) bool {
	if len(prefix) > len(s) {
		return false
	}
	for i, r := range prefix {
		if s[i] != r {
			return false
		}
	}
	return true
}
