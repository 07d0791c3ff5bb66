package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_MissingKey(t *testing.T) {
	t.Setenv("CODEQA_TEST_GEMINI_KEY", "")

	_, err := NewEmbedder(context.Background(), Config{APIKeyEnv: "CODEQA_TEST_GEMINI_KEY"})

	assert.ErrorContains(t, err, "CODEQA_TEST_GEMINI_KEY")
}

func TestNewEmbedder_Defaults(t *testing.T) {
	t.Setenv("CODEQA_TEST_GEMINI_KEY", "k")

	e, err := NewEmbedder(context.Background(), Config{APIKeyEnv: "CODEQA_TEST_GEMINI_KEY"})

	require.NoError(t, err)
	assert.Equal(t, "genai", e.Name())
	assert.Equal(t, DefaultModel, e.model)
	assert.Equal(t, DefaultDimension, e.Dimension())

	out, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}
