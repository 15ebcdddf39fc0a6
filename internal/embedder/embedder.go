package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrBatchTooLarge       = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled   = errors.New("no embedding provider configured")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float64
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash for caching
}

// EmbeddingRequest represents a request to embed one text
type EmbeddingRequest struct {
	Text string
}

// BatchEmbeddingRequest represents a batch request
type BatchEmbeddingRequest struct {
	Texts []string
}

// BatchEmbeddingResponse represents a batch response
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder interface defines methods for generating embeddings.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// GenerateEmbedding embeds a single text
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)

	// GenerateBatch embeds several texts, preserving order
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name stored alongside cached vectors
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by model and content hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of an embedding from cache
func (c *Cache) Get(key string) (*Embedding, bool) {
	emb, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return emb.clone(), true
}

// Set stores a copy of an embedding
func (c *Cache) Set(key string, emb *Embedding) {
	c.cache.Add(key, emb.clone())
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

func (e *Embedding) clone() *Embedding {
	vectorCopy := make([]float64, len(e.Vector))
	copy(vectorCopy, e.Vector)
	return &Embedding{
		Vector:    vectorCopy,
		Dimension: e.Dimension,
		Provider:  e.Provider,
		Model:     e.Model,
		Hash:      e.Hash,
	}
}

// ComputeHash computes SHA-256 hash of text
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// CacheKey scopes a content hash to a model so providers can share a cache
func CacheKey(model, text string) string {
	return model + ":" + ComputeHash(text)
}

// ValidateBatchRequest validates a batch embedding request
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	if len(req.Texts) > MaxBatchSize {
		return fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}
	return nil
}

// Zero returns an all-zero embedding for the given provider metadata
func Zero(provider, model string, dim int) *Embedding {
	return &Embedding{
		Vector:    make([]float64, dim),
		Dimension: dim,
		Provider:  provider,
		Model:     model,
		Hash:      ComputeHash(""),
	}
}
