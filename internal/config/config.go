package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pressbox/vectorpipe/internal/embedder"
	"github.com/pressbox/vectorpipe/internal/vectorstore"
)

// ErrInvalidConfig is returned for configuration the pipeline cannot start
// with. Startup fails fast; nothing tolerates a bad config at runtime.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variable overrides for credentials. Secrets come from the
// environment, never from the config file checked into a repo.
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvVectorAPIKey = "VECTOR_API_KEY"
	EnvVectorDBURL  = "VECTOR_DB_URL"
)

// Duration wraps time.Duration for YAML fields written as "30m" or "200ms"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DatabaseConfig locates the relational article store
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider  string   `yaml:"provider"` // openai or local
	Model     string   `yaml:"model"`
	BaseURL   string   `yaml:"base_url"`
	APIKey    string   `yaml:"-"` // env only
	CacheSize int      `yaml:"cache_size"`
	Timeout   Duration `yaml:"timeout"`
}

// VectorStoreConfig selects and tunes the vector store backend
type VectorStoreConfig struct {
	Backend   string `yaml:"backend"` // rest, pgvector, or memory
	Namespace string `yaml:"namespace"`
	Dimension int    `yaml:"dimension"` // 0 means the embedder's dimension

	// rest backend
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"-"` // env only
	Timeout Duration `yaml:"timeout"`

	// pgvector backend
	ConnString string `yaml:"-"` // env only
	Table      string `yaml:"table"`
}

// PipelineConfig tunes batch processing
type PipelineConfig struct {
	Concurrency   int      `yaml:"concurrency"`
	BatchSize     int      `yaml:"batch_size"`
	EmbedInterval Duration `yaml:"embed_interval"`
	StuckTimeout  Duration `yaml:"stuck_timeout"`
}

// SearchConfig tunes the search service
type SearchConfig struct {
	CacheSize int      `yaml:"cache_size"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	TopK      int      `yaml:"top_k"`
}

// LogConfig tunes logging
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Config is the full pipeline configuration
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Search      SearchConfig      `yaml:"search"`
	Log         LogConfig         `yaml:"log"`
}

// Default returns the configuration used when no file is present: local
// embedding provider and in-memory vector store, suitable for development
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "articles.db"},
		Embedding: EmbeddingConfig{
			Provider:  embedder.ProviderLocal,
			CacheSize: 1024,
			Timeout:   Duration(30 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Backend:   vectorstore.BackendMemory,
			Namespace: vectorstore.DefaultNamespace,
			Timeout:   Duration(30 * time.Second),
		},
		Pipeline: PipelineConfig{
			Concurrency:   3,
			BatchSize:     50,
			EmbedInterval: Duration(200 * time.Millisecond),
			StuckTimeout:  Duration(30 * time.Minute),
		},
		Search: SearchConfig{
			CacheSize: 128,
			CacheTTL:  Duration(5 * time.Minute),
			TopK:      10,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides, fills defaults, and validates. A missing file is not an
// error; missing credentials for the selected backends are.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvOpenAIAPIKey); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv(EnvVectorAPIKey); v != "" {
		c.VectorStore.APIKey = v
	}
	if v := os.Getenv(EnvVectorDBURL); v != "" {
		c.VectorStore.ConnString = v
	}
}

func (c *Config) fillDefaults() {
	if c.VectorStore.Namespace == "" {
		c.VectorStore.Namespace = vectorstore.DefaultNamespace
	}
	if c.VectorStore.Dimension == 0 {
		c.VectorStore.Dimension = c.EmbedderDimension()
	}
	if c.Pipeline.Concurrency <= 0 {
		c.Pipeline.Concurrency = 3
	}
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 50
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 10
	}
}

// EmbedderDimension returns the vector dimensionality of the configured
// embedding provider, or 0 for an unknown provider
func (c *Config) EmbedderDimension() int {
	switch c.Embedding.Provider {
	case embedder.ProviderOpenAI:
		return embedder.OpenAIDimension
	case embedder.ProviderLocal, "":
		return embedder.LocalDimension
	default:
		return 0
	}
}

// Validate checks the configuration is runnable: known backends,
// credentials present for the selected ones, and embedder and vector store
// agreeing on dimensionality. All failures wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	embedDim := c.EmbedderDimension()
	switch c.Embedding.Provider {
	case embedder.ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("%w: %s is required for the openai embedding provider",
				ErrInvalidConfig, EnvOpenAIAPIKey)
		}
	case embedder.ProviderLocal, "":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}

	switch c.VectorStore.Backend {
	case vectorstore.BackendREST:
		if c.VectorStore.BaseURL == "" {
			return fmt.Errorf("%w: vector_store.base_url is required for the rest backend", ErrInvalidConfig)
		}
		if c.VectorStore.APIKey == "" {
			return fmt.Errorf("%w: %s is required for the rest vector store backend",
				ErrInvalidConfig, EnvVectorAPIKey)
		}
	case vectorstore.BackendPGVector:
		if c.VectorStore.ConnString == "" {
			return fmt.Errorf("%w: %s is required for the pgvector backend",
				ErrInvalidConfig, EnvVectorDBURL)
		}
	case vectorstore.BackendMemory, "":
	default:
		return fmt.Errorf("%w: unknown vector store backend %q", ErrInvalidConfig, c.VectorStore.Backend)
	}

	// a dimension mismatch would produce garbage similarity scores, not a
	// clean runtime error, so it must never get past startup
	if c.VectorStore.Dimension != embedDim {
		return fmt.Errorf("%w: vector store dimension %d does not match embedding provider dimension %d",
			ErrInvalidConfig, c.VectorStore.Dimension, embedDim)
	}

	return nil
}
