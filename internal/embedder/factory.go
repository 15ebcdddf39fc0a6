package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string // optional model override for hosted providers
	BaseURL   string // optional endpoint override for hosted providers
	CacheSize int
}

// New creates an embedder with explicit configuration. An empty provider
// selects the local hash embedder.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch DetectProvider(cfg) {
	case ProviderLocal:
		if cfg.Model != "" && cfg.Model != HashModel {
			return nil, fmt.Errorf("%w: local provider only serves %s", ErrUnsupportedProvider, HashModel)
		}
		return NewHashProvider(cache), nil
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.APIKey, cfg.Model, cache)
		if err != nil {
			return nil, err
		}
		if cfg.BaseURL != "" {
			p.cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return p, nil
	case ProviderJina:
		p, err := NewJinaProvider(cfg.APIKey, cfg.Model, cache)
		if err != nil {
			return nil, err
		}
		if cfg.BaseURL != "" {
			p.cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DetectProvider returns the normalized provider name New would use
func DetectProvider(cfg Config) string {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		return ProviderLocal
	}
	return provider
}
