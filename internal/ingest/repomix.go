// Package ingest turns a repomix dump of the codebase into indexed chunks.
package ingest

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"codeqa/internal/domain"
)

// repomix writes file bodies unescaped, so the dump is not well-formed XML
// and has to be matched textually.
var fileRe = regexp.MustCompile(`(?s)<file path="([^"]+)">(.*?)</file>`)

// ParseRepomix extracts every <file path="..."> entry. Documents are
// numbered by their position in the dump; empty files are skipped but
// still consume a number so IDs stay stable across runs.
func ParseRepomix(r io.Reader) ([]domain.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read repomix dump: %w", err)
	}
	var docs []domain.Document
	for i, m := range fileRe.FindAllStringSubmatch(string(data), -1) {
		content := strings.TrimSpace(m[2])
		if content == "" {
			continue
		}
		docs = append(docs, domain.Document{ID: strconv.Itoa(i), Path: m[1], Content: content})
	}
	return docs, nil
}

// EmbeddingText is the text embedded for a chunk: the path and line range
// followed by the code.
func EmbeddingText(ch domain.CodeChunk) string {
	lines := ch.Lines
	if lines == "" {
		lines = "full file"
	}
	return fmt.Sprintf("File path: %s\nLines: %s\n\n%s", ch.Path, lines, ch.Content)
}
