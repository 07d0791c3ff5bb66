package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/internal/domain"
)

func numbered(n, width int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("%0*d", width, i+1)
	}
	return strings.Join(lines, "\n")
}

func TestChunk_SmallFileIsWhole(t *testing.T) {
	c := NewWindowChunker(0, 0, 0, 400)

	chunks, err := c.Chunk(domain.Document{ID: "7", Path: "a/A.java", Content: "\n  class A {}\n\n"})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, domain.CodeChunk{ID: "7", Path: "a/A.java", Content: "class A {}", Kind: domain.KindFullFile}, chunks[0])
}

func TestChunk_BlankFileIsSkipped(t *testing.T) {
	chunks, err := NewWindowChunker(0, 0, 0, 400).Chunk(domain.Document{ID: "1", Content: " \n\t"})

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_OverlappingWindows(t *testing.T) {
	c := NewWindowChunker(12000, 800, 50, 400)
	// 2000 lines of 20 chars: an 800-line window is already over the limit
	chunks, err := c.Chunk(domain.Document{ID: "3", Path: "Big.java", Content: numbered(2000, 20)})

	require.NoError(t, err)
	var got []string
	for _, ch := range chunks {
		got = append(got, ch.Lines)
		assert.Equal(t, domain.KindFileFragment, ch.Kind)
	}
	assert.Equal(t, []string{"1–800", "401–1200", "801–1600", "1201–2000"}, got)
	assert.Equal(t, "3_0", chunks[0].ID)
	assert.Equal(t, "3_3", chunks[3].ID)
	assert.True(t, strings.HasPrefix(chunks[1].Content, fmt.Sprintf("%020d\n", 401)))
	assert.True(t, strings.HasSuffix(chunks[3].Content, fmt.Sprintf("%020d", 2000)))
}

func TestChunk_WindowsGrowUntilLimit(t *testing.T) {
	c := NewWindowChunker(12000, 800, 50, 400)
	// 3000 lines of 5 chars (6 with newline)
	chunks, err := c.Chunk(domain.Document{ID: "9", Path: "Wide.java", Content: numbered(3000, 5)})

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2000, chunks[0].EndLine)
	assert.Equal(t, "1601–3000", chunks[1].Lines)
}
