package tfidf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func TestTokenize_SplitsIdentifiers(t *testing.T) {
	e := NewEmbedder()

	toks := e.tokenize("public void spawnEntity(WorldChunk chunk_ref)")

	assert.Equal(t, []string{"spawnentity", "spawn", "entity", "worldchunk", "world", "chunk", "chunk_ref", "chunk", "ref"}, toks)
}

func TestEmbed_RequiresPrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "x")

	assert.Error(t, err)
}

func TestEmbed_SimilarCodeScoresHigher(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	corpus := []string{
		"class WeatherSystem { void updateForecast() {} }",
		"class PacketHandler { void handlePacket(Packet p) {} }",
		"class EntitySpawner { void spawnEntity() {} }",
	}
	require.NoError(t, e.Prepare(ctx, corpus))

	q, err := e.Embed(ctx, "how is the weather forecast updated")
	require.NoError(t, err)
	weather, _ := e.Embed(ctx, corpus[0])
	packets, _ := e.Embed(ctx, corpus[1])

	assert.Greater(t, dot(q, weather), dot(q, packets))
	assert.InDelta(t, 1.0, math.Sqrt(dot(weather, weather)), 1e-9)
	assert.Equal(t, len(q), e.Dimension())
}

func TestEmbed_UnknownTermsGiveZeroVector(t *testing.T) {
	ctx := context.Background()
	e := NewEmbedder()
	require.NoError(t, e.Prepare(ctx, []string{"alpha beta"}))

	v, err := e.Embed(ctx, "gamma")

	require.NoError(t, err)
	assert.Equal(t, 0.0, dot(v, v))
}

func TestPrepare_EmptyCorpus(t *testing.T) {
	assert.Error(t, NewEmbedder().Prepare(context.Background(), nil))
}
