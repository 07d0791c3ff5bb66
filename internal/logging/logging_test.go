package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"codeqa/internal/config"
)

func TestNew_VerboseEnablesDebug(t *testing.T) {
	log, err := New(config.LogConfig{Level: "warn"}, true, filepath.Join(t.TempDir(), "x.log"))
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_LevelFromConfig(t *testing.T) {
	log, err := New(config.LogConfig{Level: "warn"}, false, filepath.Join(t.TempDir(), "x.log"))
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "codeqa.log")
	log, err := New(config.LogConfig{Level: "info"}, false, path)
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
