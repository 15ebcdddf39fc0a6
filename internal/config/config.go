// Package config loads service configuration from defaults, an optional YAML
// file, an optional .env file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/tutormatch/pkg/types"
)

// Environment variables understood by Load
const (
	EnvConfigPath        = "TUTORMATCH_CONFIG"
	EnvDBPath            = "TUTORMATCH_DB_PATH"
	EnvLogMode           = "TUTORMATCH_LOG_MODE"
	EnvLogLevel          = "TUTORMATCH_LOG_LEVEL"
	EnvHTTPAddr          = "TUTORMATCH_HTTP_ADDR"
	EnvEmbeddingProvider = "TUTORMATCH_EMBEDDING_PROVIDER"
	EnvEmbeddingModel    = "TUTORMATCH_EMBEDDING_MODEL"
	EnvRetrieveTopK      = "TUTORMATCH_RETRIEVE_TOP_K"
	EnvRerankTopK        = "TUTORMATCH_RERANK_TOP_K"
	EnvWorkers           = "TUTORMATCH_WORKERS"
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvJinaKey           = "JINA_API_KEY"
)

var (
	ErrInvalidTopK    = errors.New("top_k values must be positive")
	ErrInvalidWorkers = errors.New("workers must be positive")
	ErrEmptyDBPath    = errors.New("database path is required")
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log struct {
		Mode  string `yaml:"mode"`
		Level string `yaml:"level"`
	} `yaml:"log"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Embedding struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		APIKey    string `yaml:"api_key"`
		BaseURL   string `yaml:"base_url"`
		CacheSize int    `yaml:"cache_size"`
	} `yaml:"embedding"`
	Matching struct {
		RetrieveTopK  int                 `yaml:"retrieve_top_k"`
		RerankTopK    int                 `yaml:"rerank_top_k"`
		Workers       int                 `yaml:"workers"`
		FieldWeights  types.FieldWeights  `yaml:"field_weights"`
		RerankWeights types.RerankWeights `yaml:"rerank_weights"`
	} `yaml:"matching"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	var cfg Config
	cfg.Database.Path = "tutormatch.db"
	cfg.Log.Mode = "dev"
	cfg.Log.Level = "info"
	cfg.HTTP.Addr = ":8080"
	cfg.Embedding.Provider = "local"
	cfg.Embedding.CacheSize = 10000
	cfg.Matching.RetrieveTopK = 50
	cfg.Matching.RerankTopK = 10
	cfg.Matching.Workers = 4
	cfg.Matching.FieldWeights = types.DefaultFieldWeights()
	cfg.Matching.RerankWeights = types.DefaultRerankWeights()
	return &cfg
}

// Load builds the configuration. A missing .env or YAML file is not an error;
// a YAML file that exists but does not parse is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Path, EnvDBPath)
	setString(&c.Log.Mode, EnvLogMode)
	setString(&c.Log.Level, EnvLogLevel)
	setString(&c.HTTP.Addr, EnvHTTPAddr)
	setString(&c.Embedding.Provider, EnvEmbeddingProvider)
	setString(&c.Embedding.Model, EnvEmbeddingModel)

	for name, dst := range map[string]*int{
		EnvRetrieveTopK: &c.Matching.RetrieveTopK,
		EnvRerankTopK:   &c.Matching.RerankTopK,
		EnvWorkers:      &c.Matching.Workers,
	} {
		if err := setInt(dst, name); err != nil {
			return err
		}
	}

	// Provider keys fill in only when no key was configured explicitly
	if c.Embedding.APIKey == "" {
		switch strings.ToLower(c.Embedding.Provider) {
		case "openai":
			c.Embedding.APIKey = os.Getenv(EnvOpenAIKey)
		case "jina":
			c.Embedding.APIKey = os.Getenv(EnvJinaKey)
		}
	}
	return nil
}

// Validate checks the values that would make matching misbehave
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return ErrEmptyDBPath
	}
	if c.Matching.RetrieveTopK <= 0 || c.Matching.RerankTopK <= 0 {
		return ErrInvalidTopK
	}
	if c.Matching.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if err := c.Matching.FieldWeights.Validate(); err != nil {
		return fmt.Errorf("field_weights: %w", err)
	}
	if err := c.Matching.RerankWeights.Validate(); err != nil {
		return fmt.Errorf("rerank_weights: %w", err)
	}
	return nil
}

func setString(dst *string, name string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, name string) error {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}
