package embedder

import (
	"fmt"
	"strings"
	"time"

	"github.com/pressbox/vectorpipe/internal/retry"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string        // Optional: override the provider default
	BaseURL   string        // Optional: override the provider endpoint
	CacheSize int           // 0 disables caching
	Timeout   time.Duration // 0 uses DefaultTimeout
	Retry     *retry.Config // nil uses retry.DefaultConfig
}

// New creates an embedder with explicit configuration. No ambient state:
// the caller constructs one at startup and passes it by reference into the
// components that need it.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.APIKey, cache)
		if err != nil {
			return nil, err
		}
		if cfg.Model != "" {
			p.model = cfg.Model
		}
		if cfg.BaseURL != "" {
			p.baseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		if cfg.Timeout > 0 {
			p.httpClient.Timeout = cfg.Timeout
		}
		if cfg.Retry != nil {
			p.retryCfg = *cfg.Retry
		}
		return p, nil
	case ProviderLocal, "":
		return NewLocalProvider(cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}
