package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	// ErrInvalidInput marks permanent validation failures. Callers must not
	// retry and should fail the article immediately.
	ErrInvalidInput = errors.New("invalid input")
	// ErrProviderFailed marks a provider call that failed after exhausting
	// retries. It wraps the last attempt's error.
	ErrProviderFailed = errors.New("embedding provider failed")
	// ErrUnsupportedProvider is returned by the factory for unknown provider names
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
)

// Input limits. Text longer than MaxInputChars is cut to exactly
// MaxInputChars and TruncationMarker is appended so downstream consumers
// know the embedding reflects partial content.
const (
	MaxInputChars    = 8000
	TruncationMarker = "... [truncated]"
)

// Embedding is the explicit result struct at the provider boundary.
// Internal code never depends on provider response shapes.
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash used as the cache key
	Truncated bool   // True when input was cut to MaxInputChars
}

// Embedder generates fixed-dimensionality vector embeddings from text.
// Implementations must be safe for concurrent use; they hold no mutable
// shared state beyond the internal cache.
type Embedder interface {
	// Embed generates an embedding for a single text. Empty or whitespace-only
	// text fails immediately with ErrInvalidInput; transient provider failures
	// are retried with exponential backoff before surfacing ErrProviderFailed.
	Embed(ctx context.Context, text string) (*Embedding, error)

	// Dimension returns the fixed vector dimensionality for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// TruncateInput enforces the input character budget. Returns the (possibly
// truncated) text and whether truncation happened. Truncation must run
// before any network call so provider spend reflects the budget.
func TruncateInput(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= MaxInputChars {
		return text, false
	}
	return string(runes[:MaxInputChars]) + TruncationMarker, true
}

// ValidateInput rejects text the provider would reject anyway. Permanent,
// never retried.
func ValidateInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrInvalidInput
	}
	return nil
}

// ComputeHash computes the SHA-256 cache key for a text
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Cache provides in-memory LRU caching of embeddings by content hash
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
		// Only possible with a non-positive size, which is handled above
		cache, _ = lru.New[string, *Embedding](10000)
	}
	return &Cache{cache: cache}
}

// Get retrieves a deep copy of an embedding from cache.
// Returns a copy so caller mutations cannot pollute cached values.
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Provider:  emb.Provider,
		Model:     emb.Model,
		Hash:      emb.Hash,
		Truncated: emb.Truncated,
	}, true
}

// Set stores an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}
