package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_LoadConfig_Defaults(t *testing.T) {
	t.Setenv("MONGO_URL", "")
	t.Setenv("OPENAI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: mongo
  connect_timeout: 3s
summarizer:
  max_retries: 5
retrieval:
  top_k: 4
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Store.ConnectTimeout)
	assert.Equal(t, "astrobot_original", cfg.Store.OriginalDB)
	assert.Equal(t, "astrobot_summary", cfg.Store.ProcessedDB)
	assert.True(t, cfg.Store.JSONFallback)
	assert.True(t, cfg.Pipeline.Incremental)
	assert.Equal(t, 5, cfg.Summarizer.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Summarizer.Backoff)
	assert.Equal(t, 2000, cfg.Summarizer.MaxInputChars)
	assert.Equal(t, 50, cfg.Pipeline.MinImageDim)
	assert.Equal(t, 1500000, cfg.Pipeline.MaxImageArea)
	assert.Equal(t, 0.3, cfg.Pipeline.OCRConfidence)
	assert.Equal(t, 384, cfg.Embedding.Text.Dimension)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 0.2, cfg.Retrieval.Threshold)
}

func Test_LoadConfig_ExplicitFalse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  json_fallback: false\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, cfg.Store.JSONFallback)
}

func Test_LoadConfig_MissingFile(t *testing.T) {
	t.Setenv("MONGO_URL", "mongodb://db:27017")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.URL)
	assert.Equal(t, "output", cfg.Store.OutputDir)
	assert.Equal(t, []string{"tha", "eng"}, cfg.Pipeline.OCRLanguages)
}

func Test_LoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func Test_LoadConfig_OpenAIKeyReachesEmbedder(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
summarizer:
  key: sk-summarizer
embedding:
  text:
    provider: openai
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-summarizer", cfg.Summarizer.Key)
	assert.Equal(t, "sk-test", cfg.Embedding.Text.Key)
}
