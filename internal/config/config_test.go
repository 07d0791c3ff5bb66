package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Primary.Provider)
	assert.Equal(t, "https://api.x.ai/v1", cfg.LLM.Primary.BaseURL)
	assert.Equal(t, "grok-4-1-fast-reasoning", cfg.LLM.Primary.Model)
	assert.Nil(t, cfg.LLM.Secondary)
	assert.Equal(t, 12, cfg.Conversation.MaxHistory)
	assert.Equal(t, 8, cfg.Conversation.KeepLast)
	assert.Equal(t, 50, cfg.Conversation.InitialTopK)
	assert.Equal(t, 10, cfg.Conversation.FollowUpTopK)
	assert.Equal(t, 1800, cfg.Delivery.MessageLimit)
	assert.Equal(t, 120*time.Second, cfg.TurnTimeout())
	assert.InDelta(t, 0.15, *cfg.Ranker.KeywordBoost, 1e-9)
	assert.InDelta(t, 0.3, *cfg.Ranker.BoostWeight, 1e-9)
	assert.InDelta(t, 0.01, *cfg.Ranker.AnnotateThreshold, 1e-9)
	require.NotNil(t, cfg.LLM.Primary.Temperature)
	assert.InDelta(t, 0.2, *cfg.LLM.Primary.Temperature, 1e-6)
	assert.Equal(t, 12000, cfg.Ingest.MaxChunkChars)
	assert.Equal(t, "memory", cfg.Sessions.Type)
}

func TestLoad_PartialFileGetsSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  primary:
    provider: claude
  secondary:
    provider: gemini
    model: gemini-2.5-pro
vector_store:
  type: qdrant
sessions:
  type: redis
ranker:
  keyword_boost: 0.2
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.LLM.Primary.APIKeyEnv)
	require.NotNil(t, cfg.LLM.Secondary)
	assert.Equal(t, "GEMINI_API_KEY", cfg.LLM.Secondary.APIKeyEnv)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Secondary.Model)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "hytale_codebase", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	require.NotNil(t, cfg.Sessions.Redis)
	assert.Equal(t, "localhost:6379", cfg.Sessions.Redis.Addr)
	assert.InDelta(t, 0.2, *cfg.Ranker.KeywordBoost, 1e-9)
	assert.InDelta(t, 0.3, *cfg.Ranker.BoostWeight, 1e-9)
}

func TestLoad_ExplicitZeroIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  primary:
    provider: openai
    temperature: 0
ranker:
  keyword_boost: 0
  annotate_threshold: 0
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Zero(t, *cfg.LLM.Primary.Temperature)
	assert.Zero(t, *cfg.Ranker.KeywordBoost)
	assert.Zero(t, *cfg.Ranker.AnnotateThreshold)
	assert.InDelta(t, 0.3, *cfg.Ranker.BoostWeight, 1e-9)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.HTTP.Addr = ":9999"

	require.NoError(t, Save(path, cfg))
	got, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9999", got.HTTP.Addr)
	assert.Equal(t, cfg.Ingest, got.Ingest)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [unclosed"), 0o644))

	_, err := Load(path)

	assert.Error(t, err)
}
