package chunker

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"codeqa/internal/domain"
)

// WindowChunker keeps small files whole and splits large ones into
// overlapping line windows that grow until they approach MaxChars.
type WindowChunker struct {
	maxChars     int
	windowLines  int
	growLines    int
	overlapLines int
}

func NewWindowChunker(maxChars, windowLines, growLines, overlapLines int) *WindowChunker {
	if maxChars <= 0 {
		maxChars = 12000
	}
	if windowLines <= 0 {
		windowLines = 800
	}
	if growLines <= 0 {
		growLines = 50
	}
	if overlapLines < 0 || overlapLines >= windowLines {
		overlapLines = windowLines / 2
	}
	return &WindowChunker{
		maxChars:     maxChars,
		windowLines:  windowLines,
		growLines:    growLines,
		overlapLines: overlapLines,
	}
}

// Chunk implements domain.Chunker. Blank documents yield no chunks.
func (c *WindowChunker) Chunk(document domain.Document) ([]domain.CodeChunk, error) {
	content := strings.TrimSpace(document.Content)
	if content == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(content) <= c.maxChars {
		return []domain.CodeChunk{{
			ID:      document.ID,
			Path:    document.Path,
			Content: content,
			Kind:    domain.KindFullFile,
		}}, nil
	}

	lines := strings.Split(content, "\n")
	var chunks []domain.CodeChunk
	start := 0
	for idx := 0; start < len(lines); idx++ {
		end := start + c.windowLines
		for end < len(lines) && c.size(lines[start:end+1]) < c.maxChars {
			end += c.growLines
		}
		if end > len(lines) {
			end = len(lines)
		}
		chunks = append(chunks, domain.CodeChunk{
			ID:        document.ID + "_" + strconv.Itoa(idx),
			Path:      document.Path,
			Content:   strings.Join(lines[start:end], "\n"),
			Kind:      domain.KindFileFragment,
			StartLine: start + 1,
			EndLine:   end,
			Lines:     fmt.Sprintf("%d–%d", start+1, end),
		})
		if end == len(lines) {
			break
		}
		start = end - c.overlapLines
		if start < 0 {
			start = 0
		}
	}
	return chunks, nil
}

// size is the character count of lines joined by newlines.
func (c *WindowChunker) size(lines []string) int {
	n := len(lines) - 1
	for _, l := range lines {
		n += utf8.RuneCountInString(l)
	}
	return n
}
