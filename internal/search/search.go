package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pressbox/vectorpipe/internal/embedder"
	"github.com/pressbox/vectorpipe/internal/vectorstore"
)

var (
	// ErrInvalidRequest is returned for requests the service cannot execute,
	// such as an unknown sentiment bucket or an empty query
	ErrInvalidRequest = errors.New("invalid search request")
)

// Sentiment buckets. Scores at or above PositiveThreshold are positive,
// at or below NegativeThreshold negative, everything between neutral.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"

	PositiveThreshold = 0.1
	NegativeThreshold = -0.1
)

// DefaultTopK is used when a request does not set TopK
const DefaultTopK = 10

// Request describes one semantic search
type Request struct {
	Query string
	TopK  int

	// Optional filters
	Source         string     // Exact source match
	Sentiment      string     // positive, negative, or neutral; empty for all
	PublishedAfter *time.Time // Only articles published at or after this instant
}

// Result is one denormalized search hit. Fields other than VectorID and
// Score come from vector metadata and are zero-valued when the metadata is
// incomplete; a bad hit never fails the whole search.
type Result struct {
	VectorID      string
	ArticleID     int64 // 0 when the vector id is not in article_{id} form
	Score         float64
	Title         string
	URL           string
	Source        string
	PublishedDate *time.Time
	Sentiment     float64
}

// Response is the ordered result list for one search. Results preserve the
// vector store's descending-score order.
type Response struct {
	Results []Result
	Cached  bool
}

type cacheEntry struct {
	results  []Result
	storedAt time.Time
}

// Service executes semantic queries: embeds the query text, delegates to
// the vector store, and joins metadata into ranked results. Repeated
// queries are served from a TTL-bounded LRU cache.
type Service struct {
	embedder embedder.Embedder
	vectors  vectorstore.Store
	cache    *lru.Cache[string, cacheEntry]
	cacheTTL time.Duration
	logger   *slog.Logger
}

// Config tunes the search service
type Config struct {
	CacheSize int           // Query cache capacity; zero disables caching
	CacheTTL  time.Duration // How long a cached result list stays valid
}

// New creates a search Service. The embedder and vector store must agree on
// dimensionality; a mismatch is a wiring bug surfaced here rather than as
// garbage similarity scores at query time.
func New(emb embedder.Embedder, vectors vectorstore.Store, cfg Config, logger *slog.Logger) (*Service, error) {
	if emb.Dimension() != vectors.Dimension() {
		return nil, fmt.Errorf("embedder dimension %d does not match vector store dimension %d",
			emb.Dimension(), vectors.Dimension())
	}
	if logger == nil {
		logger = slog.Default()
	}

	var cache *lru.Cache[string, cacheEntry]
	if cfg.CacheSize > 0 {
		var err error
		cache, err = lru.New[string, cacheEntry](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create query cache: %w", err)
		}
	}

	return &Service{
		embedder: emb,
		vectors:  vectors,
		cache:    cache,
		cacheTTL: cfg.CacheTTL,
		logger:   logger.With("component", "search"),
	}, nil
}

// Search runs one semantic query. On vector store failure it returns an
// empty result list alongside the error so callers can render an indicator
// instead of crashing.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return &Response{Results: []Result{}}, fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}

	filter, err := buildFilter(req)
	if err != nil {
		return &Response{Results: []Result{}}, err
	}

	key := cacheKey(req)
	if results, ok := s.cachedResults(key); ok {
		return &Response{Results: results, Cached: true}, nil
	}

	emb, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return &Response{Results: []Result{}}, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectors.Query(ctx, emb.Vector, req.TopK, filter)
	if err != nil {
		s.logger.Warn("vector query failed", "error", err)
		return &Response{Results: []Result{}}, fmt.Errorf("vector query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, toResult(hit))
	}

	if s.cache != nil {
		s.cache.Add(key, cacheEntry{results: results, storedAt: time.Now()})
	}

	s.logger.Debug("search executed", "top_k", req.TopK, "results", len(results))
	return &Response{Results: results}, nil
}

func (s *Service) cachedResults(key string) ([]Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	entry, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	if s.cacheTTL > 0 && time.Since(entry.storedAt) > s.cacheTTL {
		s.cache.Remove(key)
		return nil, false
	}
	return entry.results, true
}

// buildFilter translates request filters into a vector store filter.
// Returns nil when the request is unfiltered.
func buildFilter(req Request) (*vectorstore.Filter, error) {
	filter := &vectorstore.Filter{
		Source:         req.Source,
		PublishedAfter: req.PublishedAfter,
	}

	switch req.Sentiment {
	case "":
	case SentimentPositive:
		min := PositiveThreshold
		filter.SentimentMin = &min
	case SentimentNegative:
		max := NegativeThreshold
		filter.SentimentMax = &max
	case SentimentNeutral:
		min, max := NegativeThreshold, PositiveThreshold
		filter.SentimentMin = &min
		filter.SentimentMax = &max
	default:
		return nil, fmt.Errorf("%w: unknown sentiment bucket %q", ErrInvalidRequest, req.Sentiment)
	}

	if filter.Source == "" && filter.SentimentMin == nil && filter.SentimentMax == nil && filter.PublishedAfter == nil {
		return nil, nil
	}
	return filter, nil
}

func cacheKey(req Request) string {
	var b strings.Builder
	b.WriteString(req.Query)
	b.WriteByte('\x00')
	b.WriteString(strconv.Itoa(req.TopK))
	b.WriteByte('\x00')
	b.WriteString(req.Source)
	b.WriteByte('\x00')
	b.WriteString(req.Sentiment)
	b.WriteByte('\x00')
	if req.PublishedAfter != nil {
		b.WriteString(req.PublishedAfter.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// toResult denormalizes one hit. Missing or malformed metadata nulls the
// affected fields only.
func toResult(hit vectorstore.QueryHit) Result {
	result := Result{
		VectorID:  hit.ID,
		Score:     hit.Score,
		Title:     hit.Metadata.Title,
		URL:       hit.Metadata.URL,
		Source:    hit.Metadata.Source,
		Sentiment: hit.Metadata.Sentiment,
	}

	if idStr, ok := strings.CutPrefix(hit.ID, "article_"); ok {
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			result.ArticleID = id
		}
	}
	if hit.Metadata.PublishedDate != "" {
		if ts, err := time.Parse(time.RFC3339, hit.Metadata.PublishedDate); err == nil {
			result.PublishedDate = &ts
		}
	}
	return result
}
