package embedder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
)

// Provider configuration
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"

	// Hash embedder identity
	HashModel     = "local-hash-v1"
	HashDimension = 128

	// Batch limits
	MaxBatchSize = 100
)

// HashProvider is the deterministic token-hash embedder. Each whitespace
// token contributes its SHA-256 digest, spread cyclically over the vector,
// and the sum is scaled to unit length.
type HashProvider struct {
	dim   int
	cache *Cache
}

// NewHashProvider creates the hash embedder. A nil cache disables caching.
func NewHashProvider(cache *Cache) *HashProvider {
	return &HashProvider{dim: HashDimension, cache: cache}
}

func (h *HashProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := CacheKey(HashModel, req.Text)
	if h.cache != nil {
		if emb, ok := h.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb := &Embedding{
		Vector:    HashEmbed(req.Text, h.dim),
		Dimension: h.dim,
		Provider:  ProviderLocal,
		Model:     HashModel,
		Hash:      ComputeHash(req.Text),
	}

	if h.cache != nil {
		h.cache.Set(key, emb)
	}
	return emb, nil
}

func (h *HashProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := h.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      HashModel,
	}, nil
}

func (h *HashProvider) Dimension() int {
	return h.dim
}

func (h *HashProvider) Provider() string {
	return ProviderLocal
}

func (h *HashProvider) Model() string {
	return HashModel
}

func (h *HashProvider) Close() error {
	return nil
}

// Tokenize lower-cases and trims text and splits it on whitespace
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(text)))
}

// HashEmbed computes the hash embedding of text with dim dimensions.
// Text without tokens yields the zero vector.
func HashEmbed(text string, dim int) []float64 {
	vec := make([]float64, dim)
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	for _, tok := range tokens {
		digest := sha256.Sum256([]byte(tok))
		for i := 0; i < dim; i++ {
			vec[i] += float64(digest[i%len(digest)]) / 255.0
		}
	}
	return Normalize(vec)
}
