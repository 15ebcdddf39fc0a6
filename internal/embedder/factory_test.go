package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantProvider string
		wantModel    string
		wantErr      error
	}{
		{name: "default is local", cfg: Config{}, wantProvider: ProviderLocal, wantModel: HashModel},
		{name: "explicit local", cfg: Config{Provider: " LOCAL "}, wantProvider: ProviderLocal, wantModel: HashModel},
		{name: "local rejects other models", cfg: Config{Provider: "local", Model: "minilm"}, wantErr: ErrUnsupportedProvider},
		{name: "openai", cfg: Config{Provider: "openai", APIKey: "k"}, wantProvider: ProviderOpenAI, wantModel: DefaultOpenAIModel},
		{name: "jina with model", cfg: Config{Provider: "jina", APIKey: "k", Model: "jina-v2"}, wantProvider: ProviderJina, wantModel: "jina-v2"},
		{name: "openai without key", cfg: Config{Provider: "openai"}, wantErr: ErrNoProviderEnabled},
		{name: "unknown", cfg: Config{Provider: "word2vec"}, wantErr: ErrUnsupportedProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer emb.Close()
			assert.Equal(t, tt.wantProvider, emb.Provider())
			assert.Equal(t, tt.wantModel, emb.Model())
		})
	}
}

func TestNewBaseURLOverride(t *testing.T) {
	emb, err := New(Config{Provider: "openai", APIKey: "k", BaseURL: "http://localhost:9999/v1/"})
	require.NoError(t, err)
	p, ok := emb.(*HTTPProvider)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9999/v1", p.cfg.BaseURL)
}
