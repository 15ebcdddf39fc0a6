package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Hosted provider defaults
const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	JinaBaseURL   = "https://api.jina.ai/v1"

	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"

	OpenAIDimension = 1536
	JinaDimension   = 1024
)

// HTTPConfig configures an OpenAI-compatible embeddings endpoint
type HTTPConfig struct {
	Provider  string // reported by Provider()
	BaseURL   string // without the trailing /embeddings
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
	Retry     RetryConfig
}

// HTTPProvider implements Embedder against a POST {base}/embeddings API
type HTTPProvider struct {
	cfg        HTTPConfig
	httpClient *http.Client
	cache      *Cache
}

// NewHTTPProvider creates an HTTP embedder. The API key is required.
func NewHTTPProvider(cfg HTTPConfig, cache *Cache) (*HTTPProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key for %s not set", ErrNoProviderEnabled, cfg.Provider)
	}
	if cfg.BaseURL == "" || cfg.Model == "" || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: base url, model and dimension are required", ErrInvalidInput)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
	}, nil
}

// NewOpenAIProvider creates an HTTP embedder for the OpenAI API
func NewOpenAIProvider(apiKey, model string, cache *Cache) (*HTTPProvider, error) {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return NewHTTPProvider(HTTPConfig{
		Provider:  ProviderOpenAI,
		BaseURL:   OpenAIBaseURL,
		APIKey:    apiKey,
		Model:     model,
		Dimension: OpenAIDimension,
	}, cache)
}

// NewJinaProvider creates an HTTP embedder for the Jina AI API
func NewJinaProvider(apiKey, model string, cache *Cache) (*HTTPProvider, error) {
	if model == "" {
		model = DefaultJinaModel
	}
	return NewHTTPProvider(HTTPConfig{
		Provider:  ProviderJina,
		BaseURL:   JinaBaseURL,
		APIKey:    apiKey,
		Model:     model,
		Dimension: JinaDimension,
	}, cache)
}

func (p *HTTPProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

// GenerateBatch serves cached and blank texts locally and sends the rest in
// a single API call.
func (p *HTTPProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var pending []string
	var pendingIdx []int
	for i, text := range req.Texts {
		if len(Tokenize(text)) == 0 {
			embeddings[i] = Zero(p.cfg.Provider, p.cfg.Model, p.cfg.Dimension)
			continue
		}
		if p.cache != nil {
			if emb, ok := p.cache.Get(CacheKey(p.cfg.Model, text)); ok {
				embeddings[i] = emb
				continue
			}
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) > 0 {
		fetched, err := retryWithBackoff(ctx, p.cfg.Retry, func() ([]*Embedding, error) {
			return p.callAPI(ctx, pending)
		})
		if err != nil {
			return nil, fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, p.cfg.Retry.MaxRetries, err)
		}
		for j, emb := range fetched {
			emb.Hash = ComputeHash(pending[j])
			if p.cache != nil {
				p.cache.Set(CacheKey(p.cfg.Model, pending[j]), emb)
			}
			embeddings[pendingIdx[j]] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.cfg.Provider,
		Model:      p.cfg.Model,
	}, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": p.cfg.Model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		// Client errors other than rate limiting will not succeed on retry
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	embeddings := make([]*Embedding, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		if len(data.Embedding) != p.cfg.Dimension {
			return nil, permanent(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(data.Embedding), p.cfg.Dimension))
		}
		embeddings[data.Index] = &Embedding{
			Vector:    Normalize(data.Embedding),
			Dimension: p.cfg.Dimension,
			Provider:  p.cfg.Provider,
			Model:     p.cfg.Model,
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return embeddings, nil
}

func (p *HTTPProvider) Dimension() int {
	return p.cfg.Dimension
}

func (p *HTTPProvider) Provider() string {
	return p.cfg.Provider
}

func (p *HTTPProvider) Model() string {
	return p.cfg.Model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
