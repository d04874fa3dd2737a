package search

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressbox/vectorpipe/internal/embedder"
	"github.com/pressbox/vectorpipe/internal/vectorstore"
)

const testDimension = 4

type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	dimension int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (*embedder.Embedding, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	vec := make([]float32, f.dimension)
	vec[0] = 1
	return &embedder.Embedding{Vector: vec, Dimension: f.dimension, Provider: "fake", Model: "fake-model"}, nil
}

func (f *fakeEmbedder) Dimension() int   { return f.dimension }
func (f *fakeEmbedder) Provider() string { return "fake" }
func (f *fakeEmbedder) Model() string    { return "fake-model" }
func (f *fakeEmbedder) Close() error     { return nil }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestService(t *testing.T, cfg Config) (*Service, *fakeEmbedder, vectorstore.Store) {
	t.Helper()

	emb := &fakeEmbedder{dimension: testDimension}
	vectors := vectorstore.NewMemoryIndex(testDimension).Namespace(vectorstore.DefaultNamespace)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := New(emb, vectors, cfg, logger)
	require.NoError(t, err)
	return svc, emb, vectors
}

// seedEntry stores a vector whose first component controls its similarity
// to the fake query embedding
func seedEntry(t *testing.T, vectors vectorstore.Store, id string, similarity float32, meta vectorstore.Metadata) {
	t.Helper()

	vec := make([]float32, testDimension)
	vec[0] = similarity
	vec[1] = 1 - similarity
	require.NoError(t, vectors.Upsert(context.Background(), vectorstore.Entry{ID: id, Vector: vec, Metadata: meta}))
}

func TestSearchRankingNonIncreasing(t *testing.T) {
	svc, _, vectors := newTestService(t, Config{})

	seedEntry(t, vectors, "article_1", 0.5, vectorstore.Metadata{Title: "mid"})
	seedEntry(t, vectors, "article_2", 0.9, vectorstore.Metadata{Title: "close"})
	seedEntry(t, vectors, "article_3", 0.1, vectorstore.Metadata{Title: "far"})

	resp, err := svc.Search(context.Background(), Request{Query: "city transfer news"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}
	assert.Equal(t, "article_2", resp.Results[0].VectorID)
	assert.Equal(t, int64(2), resp.Results[0].ArticleID)
}

func TestSearchSourceFilter(t *testing.T) {
	svc, _, vectors := newTestService(t, Config{})

	seedEntry(t, vectors, "article_1", 0.9, vectorstore.Metadata{Title: "City agree fee", Source: "BBC Sport"})
	seedEntry(t, vectors, "article_2", 0.8, vectorstore.Metadata{Title: "City close in on signing", Source: "BBC Sport"})
	seedEntry(t, vectors, "article_3", 0.95, vectorstore.Metadata{Title: "City transfer latest", Source: "Sky Sports"})

	resp, err := svc.Search(context.Background(), Request{
		Query:  "Manchester City transfer",
		TopK:   2,
		Source: "BBC Sport",
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	for _, result := range resp.Results {
		assert.Equal(t, "BBC Sport", result.Source)
	}
}

func TestSearchSentimentBuckets(t *testing.T) {
	tests := []struct {
		bucket  string
		wantIDs []string
	}{
		{SentimentPositive, []string{"article_1"}},
		{SentimentNegative, []string{"article_2"}},
		{SentimentNeutral, []string{"article_3"}},
		{"", []string{"article_1", "article_2", "article_3"}},
	}

	svc, _, vectors := newTestService(t, Config{})
	seedEntry(t, vectors, "article_1", 0.9, vectorstore.Metadata{Sentiment: 0.6})
	seedEntry(t, vectors, "article_2", 0.8, vectorstore.Metadata{Sentiment: -0.4})
	seedEntry(t, vectors, "article_3", 0.7, vectorstore.Metadata{Sentiment: 0.0})

	for _, tt := range tests {
		t.Run("bucket_"+tt.bucket, func(t *testing.T) {
			resp, err := svc.Search(context.Background(), Request{Query: "match report", Sentiment: tt.bucket})
			require.NoError(t, err)

			var ids []string
			for _, result := range resp.Results {
				ids = append(ids, result.VectorID)
			}
			assert.ElementsMatch(t, tt.wantIDs, ids)
		})
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, emb, _ := newTestService(t, Config{})

	resp, err := svc.Search(context.Background(), Request{Query: "   "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, resp.Results)
	assert.Zero(t, emb.callCount())
}

func TestSearchUnknownSentimentBucket(t *testing.T) {
	svc, emb, _ := newTestService(t, Config{})

	resp, err := svc.Search(context.Background(), Request{Query: "derby", Sentiment: "angry"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, resp.Results)
	assert.Zero(t, emb.callCount())
}

type failingVectors struct {
	vectorstore.Store
}

func (f *failingVectors) Query(context.Context, []float32, int, *vectorstore.Filter) ([]vectorstore.QueryHit, error) {
	return nil, vectorstore.ErrStoreFailed
}

func TestSearchBackendFailure(t *testing.T) {
	emb := &fakeEmbedder{dimension: testDimension}
	vectors := vectorstore.NewMemoryIndex(testDimension).Namespace(vectorstore.DefaultNamespace)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, err := New(emb, &failingVectors{Store: vectors}, Config{}, logger)
	require.NoError(t, err)

	resp, err := svc.Search(context.Background(), Request{Query: "derby"})
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrStoreFailed)
	assert.NotNil(t, resp)
	assert.Empty(t, resp.Results)
}

func TestSearchCacheHit(t *testing.T) {
	svc, emb, vectors := newTestService(t, Config{CacheSize: 16, CacheTTL: time.Minute})
	seedEntry(t, vectors, "article_1", 0.9, vectorstore.Metadata{Title: "cached"})

	first, err := svc.Search(context.Background(), Request{Query: "derby"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.Search(context.Background(), Request{Query: "derby"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, emb.callCount())

	// a different top_k is a different query
	_, err = svc.Search(context.Background(), Request{Query: "derby", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, emb.callCount())
}

func TestSearchCacheExpiry(t *testing.T) {
	svc, emb, vectors := newTestService(t, Config{CacheSize: 16, CacheTTL: 10 * time.Millisecond})
	seedEntry(t, vectors, "article_1", 0.9, vectorstore.Metadata{Title: "expiring"})

	_, err := svc.Search(context.Background(), Request{Query: "derby"})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	resp, err := svc.Search(context.Background(), Request{Query: "derby"})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 2, emb.callCount())
}

func TestSearchIncompleteMetadata(t *testing.T) {
	svc, _, vectors := newTestService(t, Config{})

	seedEntry(t, vectors, "article_7", 0.9, vectorstore.Metadata{
		Title:         "good hit",
		PublishedDate: "2026-08-30T12:00:00Z",
	})
	seedEntry(t, vectors, "not-an-article", 0.8, vectorstore.Metadata{
		PublishedDate: "not a date",
	})

	resp, err := svc.Search(context.Background(), Request{Query: "derby"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	good := resp.Results[0]
	assert.Equal(t, int64(7), good.ArticleID)
	require.NotNil(t, good.PublishedDate)
	assert.Equal(t, 2026, good.PublishedDate.Year())

	// malformed metadata nulls fields, never fails the search
	bad := resp.Results[1]
	assert.Zero(t, bad.ArticleID)
	assert.Nil(t, bad.PublishedDate)
	assert.Empty(t, bad.Title)
}

func TestNewDimensionMismatch(t *testing.T) {
	emb := &fakeEmbedder{dimension: 8}
	vectors := vectorstore.NewMemoryIndex(testDimension).Namespace(vectorstore.DefaultNamespace)

	_, err := New(emb, vectors, Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}
