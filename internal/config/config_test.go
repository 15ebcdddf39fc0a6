package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tutormatch/pkg/types"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Matching.RetrieveTopK)
	assert.Equal(t, 10, cfg.Matching.RerankTopK)
	assert.Equal(t, types.DefaultRerankWeights(), cfg.Matching.RerankWeights)
	assert.Equal(t, "local", cfg.Embedding.Provider)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tutormatch.yaml")
	yamlDoc := `
database:
  path: /tmp/from-yaml.db
matching:
  rerank_top_k: 5
  rerank_weights:
    embedding: 1
    class_strength: 0
    availability: 0
    location: 0
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvRetrieveTopK, "20")
	t.Setenv(EnvEmbeddingProvider, "openai")
	t.Setenv(EnvOpenAIKey, "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-yaml.db", cfg.Database.Path)
	assert.Equal(t, 5, cfg.Matching.RerankTopK)
	assert.Equal(t, 20, cfg.Matching.RetrieveTopK)
	assert.Equal(t, 1.0, cfg.Matching.RerankWeights.Embedding)
	assert.Equal(t, 0.0, cfg.Matching.RerankWeights.Location)
	// Weights not present in the file keep their defaults
	assert.Equal(t, types.DefaultFieldWeights(), cfg.Matching.FieldWeights)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv(EnvRerankTopK, "0")
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidTopK)

	t.Setenv(EnvRerankTopK, "ten")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidateWeights(t *testing.T) {
	cfg := Default()
	cfg.Matching.FieldWeights.Bio = -1
	assert.ErrorIs(t, cfg.Validate(), types.ErrInvalidWeights)
}
