package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeqa/internal/chunker"
	"codeqa/internal/domain"
	"codeqa/internal/embedding/tfidf"
	"codeqa/internal/vectorstore/memory"
)

const dump = `This file is a merged representation of the codebase.
<files>
<file path="server/world/Weather.java">
package server.world;

public class Weather {
    private int ticks;

    public Weather(int ticks) { this.ticks = ticks; }

    public void tick() {
        if (ticks > 0) {
            ticks--;
        }
    }
}
</file>
<file path="server/Empty.java">

</file>
<file path="server/net/PacketHandler.java">
public interface PacketHandler {
    void handle(Packet packet) throws IOException {
    }
}
</file>
</files>`

func TestParseRepomix(t *testing.T) {
	docs, err := ParseRepomix(strings.NewReader(dump))

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "0", docs[0].ID)
	assert.Equal(t, "server/world/Weather.java", docs[0].Path)
	assert.True(t, strings.HasPrefix(docs[0].Content, "package server.world;"))
	assert.Equal(t, "2", docs[1].ID, "empty files still consume an ordinal")
}

func TestEmbeddingText(t *testing.T) {
	assert.Equal(t, "File path: a/B.java\nLines: full file\n\nclass B {}",
		EmbeddingText(domain.CodeChunk{Path: "a/B.java", Content: "class B {}"}))
	assert.Equal(t, "File path: a/B.java\nLines: 1–800\n\nx",
		EmbeddingText(domain.CodeChunk{Path: "a/B.java", Lines: "1–800", Content: "x"}))
}

func TestRegexExtractor(t *testing.T) {
	docs, _ := ParseRepomix(strings.NewReader(dump))

	s := RegexExtractor{}.Extract(context.Background(), docs[0].Path, docs[0].Content)

	assert.Equal(t, []string{"Weather"}, s.ClassNames)
	assert.Equal(t, []string{"Weather", "tick"}, s.MethodNames)
}

func TestTreeSitterExtractor_Java(t *testing.T) {
	docs, _ := ParseRepomix(strings.NewReader(dump))
	e := NewTreeSitterExtractor(nil)

	s := e.Extract(context.Background(), docs[0].Path, docs[0].Content)

	assert.Equal(t, []string{"Weather"}, s.ClassNames)
	assert.ElementsMatch(t, []string{"Weather", "tick"}, s.MethodNames)
}

func TestTreeSitterExtractor_NonJavaFallsBack(t *testing.T) {
	s := NewTreeSitterExtractor(nil).Extract(context.Background(), "build.gradle", "class Plugin {}")

	assert.Equal(t, []string{"Plugin"}, s.ClassNames)
}

func TestPipeline_IndexesIntoStore(t *testing.T) {
	ctx := context.Background()
	docs, err := ParseRepomix(strings.NewReader(dump))
	require.NoError(t, err)
	store := memory.NewStorage()
	emb := tfidf.NewEmbedder()
	p := NewPipeline(chunker.NewWindowChunker(0, 0, 0, 400), RegexExtractor{}, emb, store, Options{BatchSize: 1}, nil)

	stats, err := p.Run(ctx, docs)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 0, stats.Fragments)
	assert.Equal(t, 2, store.Len())

	q, err := emb.Embed(ctx, "packet handler")
	require.NoError(t, err)
	res, err := store.Search(ctx, q, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "server/net/PacketHandler.java", res[0].Chunk.Path)
	assert.Equal(t, []string{"PacketHandler"}, res[0].Chunk.ClassNames)
	assert.Equal(t, []string{"handle"}, res[0].Chunk.MethodNames)
}

type failingEmbedder struct{ *tfidf.Embedder }

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, errors.New("embedding service down")
}

func TestPipeline_EmbedFailureKeepsStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	require.NoError(t, store.Init(ctx, 1))
	require.NoError(t, store.Upsert(ctx, []domain.CodeChunk{{ID: "old"}}, [][]float64{{1}}))
	emb := &failingEmbedder{Embedder: tfidf.NewEmbedder()}
	docs, _ := ParseRepomix(strings.NewReader(dump))

	_, err := NewPipeline(chunker.NewWindowChunker(0, 0, 0, 400), nil, emb, store, Options{}, nil).Run(ctx, docs)

	assert.ErrorContains(t, err, "embedding service down")
	assert.Equal(t, 1, store.Len())
}

func TestPipeline_NoDocuments(t *testing.T) {
	_, err := NewPipeline(chunker.NewWindowChunker(0, 0, 0, 400), nil, tfidf.NewEmbedder(), memory.NewStorage(), Options{}, nil).Run(context.Background(), nil)

	assert.Error(t, err)
}
