package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pressbox/vectorpipe/internal/retry"
)

// Backend names
const (
	BackendREST     = "rest"
	BackendPGVector = "pgvector"
	BackendMemory   = "memory"
)

// Config holds vector store configuration
type Config struct {
	Backend   string
	Namespace string
	Dimension int

	// REST backend
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   *retry.Config

	// pgvector backend
	ConnString string
	Table      string
}

// New creates a vector store from explicit configuration. Constructed once
// at startup and passed by reference into the pipeline and search service.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendREST:
		return NewRESTStore(RESTConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Namespace: cfg.Namespace,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
			Retry:     cfg.Retry,
		})
	case BackendPGVector:
		return NewPGVectorStore(ctx, PGVectorConfig{
			ConnString: cfg.ConnString,
			Table:      cfg.Table,
			Namespace:  cfg.Namespace,
			Dimension:  cfg.Dimension,
		})
	case BackendMemory, "":
		namespace := cfg.Namespace
		if namespace == "" {
			namespace = DefaultNamespace
		}
		return NewMemoryIndex(cfg.Dimension).Namespace(namespace), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.Backend)
	}
}
