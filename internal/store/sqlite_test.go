package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "articles.db")
	st, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestArticle(url string) *Article {
	return &Article{
		Title:         "City Win Derby",
		URL:           url,
		Content:       "A commanding second-half performance sealed the points.",
		Source:        "BBC Sport",
		PublishedDate: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func mustCreate(t *testing.T, st *SQLiteStore, url string) *Article {
	t.Helper()

	article := newTestArticle(url)
	require.NoError(t, st.CreateArticle(context.Background(), article))
	return article
}

func TestCreateAndGetArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/a1")
	assert.Greater(t, article.ID, int64(0))

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, "City Win Derby", got.Title)
	assert.Equal(t, "BBC Sport", got.Source)
	assert.Equal(t, StatusPending, got.EmbeddingStatus)
	assert.Empty(t, got.ContentHash)
	assert.Nil(t, got.SentimentScore)
	assert.Nil(t, got.DeletedAt)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateArticleDuplicateURL(t *testing.T) {
	st := newTestStore(t)

	mustCreate(t, st, "https://example.com/dup")
	err := st.CreateArticle(context.Background(), newTestArticle("https://example.com/dup"))
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetArticleNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetArticle(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/claim")

	require.NoError(t, st.ClaimArticle(ctx, article.ID))

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.EmbeddingStatus)

	// a second claim must lose
	err = st.ClaimArticle(ctx, article.ID)
	assert.ErrorIs(t, err, ErrNotClaimable)
}

func TestClaimArticleFromFailed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/refail")
	require.NoError(t, st.ClaimArticle(ctx, article.ID))
	require.NoError(t, st.FailArticle(ctx, article.ID, "provider timeout"))

	// failed articles are claimable again
	require.NoError(t, st.ClaimArticle(ctx, article.ID))
}

func TestClaimArticleCompletedNotClaimable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/done")
	require.NoError(t, st.ClaimArticle(ctx, article.ID))
	require.NoError(t, st.CompleteArticle(ctx, article.ID, "abc123", "article_1", 0.4))

	err := st.ClaimArticle(ctx, article.ID)
	assert.ErrorIs(t, err, ErrNotClaimable)
}

func TestClaimArticleNotFound(t *testing.T) {
	st := newTestStore(t)

	err := st.ClaimArticle(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentClaimsExactlyOneWinner(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/race")

	const workers = 10
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- st.ClaimArticle(ctx, article.ID)
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrNotClaimable)
			losses++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, losses)
}

func TestCompleteArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/complete")
	require.NoError(t, st.ClaimArticle(ctx, article.ID))
	require.NoError(t, st.CompleteArticle(ctx, article.ID, "deadbeef", fmt.Sprintf("article_%d", article.ID), 0.35))

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.EmbeddingStatus)
	assert.Equal(t, "deadbeef", got.ContentHash)
	assert.Equal(t, fmt.Sprintf("article_%d", article.ID), got.SearchVectorID)
	require.NotNil(t, got.SentimentScore)
	assert.InDelta(t, 0.35, *got.SentimentScore, 1e-9)
	assert.Empty(t, got.LastError)
}

func TestCompleteArticleRequiresProcessing(t *testing.T) {
	st := newTestStore(t)

	article := mustCreate(t, st, "https://example.com/early")

	// pending → completed is not a legal transition
	err := st.CompleteArticle(context.Background(), article.ID, "h", "v", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFailArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/fail")
	require.NoError(t, st.ClaimArticle(ctx, article.ID))
	require.NoError(t, st.FailArticle(ctx, article.ID, "embedding provider returned 500"))

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.EmbeddingStatus)
	assert.Equal(t, "embedding provider returned 500", got.LastError)
}

func TestFailArticleRequiresProcessing(t *testing.T) {
	st := newTestStore(t)

	article := mustCreate(t, st, "https://example.com/failpending")
	err := st.FailArticle(context.Background(), article.ID, "nope")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRequeueArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/requeue")
	require.NoError(t, st.ClaimArticle(ctx, article.ID))
	require.NoError(t, st.FailArticle(ctx, article.ID, "transient"))
	require.NoError(t, st.RequeueArticle(ctx, article.ID))

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.EmbeddingStatus)

	// only failed articles can be requeued
	err = st.RequeueArticle(ctx, article.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResetStuckProcessing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	stuck := mustCreate(t, st, "https://example.com/stuck")
	fresh := mustCreate(t, st, "https://example.com/fresh")
	require.NoError(t, st.ClaimArticle(ctx, stuck.ID))
	require.NoError(t, st.ClaimArticle(ctx, fresh.ID))

	// age the stuck row past the cutoff
	old := time.Now().UTC().Add(-2 * time.Hour)
	_, err := st.db.ExecContext(ctx, "UPDATE articles SET updated_at = ? WHERE id = ?", old, stuck.ID)
	require.NoError(t, err)

	reset, err := st.ResetStuckProcessing(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	gotStuck, err := st.GetArticle(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, gotStuck.EmbeddingStatus)

	gotFresh, err := st.GetArticle(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, gotFresh.EmbeddingStatus)
}

func TestClearEmbedding(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/clear")
	require.NoError(t, st.ClaimArticle(ctx, article.ID))
	require.NoError(t, st.CompleteArticle(ctx, article.ID, "hash", "article_9", -0.2))

	require.NoError(t, st.ClearEmbedding(ctx, article.ID))

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.EmbeddingStatus)
	assert.Empty(t, got.ContentHash)
	assert.Empty(t, got.SearchVectorID)
	assert.Nil(t, got.SentimentScore)
}

func TestUpdateContentReturnsToPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/recrawl")
	require.NoError(t, st.ClaimArticle(ctx, article.ID))
	require.NoError(t, st.CompleteArticle(ctx, article.ID, "hash", "article_5", 0.1))

	require.NoError(t, st.UpdateContent(ctx, article.ID, "City Win Derby (updated)", "New match report."))

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.EmbeddingStatus)
	assert.Equal(t, "City Win Derby (updated)", got.Title)
	assert.Equal(t, "New match report.", got.Content)
	// hash is kept so the next run can detect whether content actually changed
	assert.Equal(t, "hash", got.ContentHash)
}

func TestListProcessable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first := mustCreate(t, st, "https://example.com/p1")
	second := mustCreate(t, st, "https://example.com/p2")
	done := mustCreate(t, st, "https://example.com/p3")
	require.NoError(t, st.ClaimArticle(ctx, done.ID))
	require.NoError(t, st.CompleteArticle(ctx, done.ID, "h", "v", 0))

	articles, err := st.ListProcessable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, first.ID, articles[0].ID)
	assert.Equal(t, second.ID, articles[1].ID)

	limited, err := st.ListProcessable(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := st.ListProcessable(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSoftDeleteArticle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	article := mustCreate(t, st, "https://example.com/gone")
	require.NoError(t, st.SoftDeleteArticle(ctx, article.ID))

	got, err := st.GetArticle(ctx, article.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)

	// deleted rows are not claimable and not listed
	err = st.ClaimArticle(ctx, article.ID)
	assert.ErrorIs(t, err, ErrNotClaimable)

	articles, err := st.ListProcessable(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, articles)

	// deleting twice reports not found
	err = st.SoftDeleteArticle(ctx, article.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustCreate(t, st, fmt.Sprintf("https://example.com/s%d", i))
	}
	claimed := mustCreate(t, st, "https://example.com/s-claimed")
	require.NoError(t, st.ClaimArticle(ctx, claimed.ID))

	done := mustCreate(t, st, "https://example.com/s-done")
	require.NoError(t, st.ClaimArticle(ctx, done.ID))
	require.NoError(t, st.CompleteArticle(ctx, done.ID, "h", "v", 0.5))

	failed := mustCreate(t, st, "https://example.com/s-failed")
	require.NoError(t, st.ClaimArticle(ctx, failed.ID))
	require.NoError(t, st.FailArticle(ctx, failed.ID, "boom"))

	deleted := mustCreate(t, st, "https://example.com/s-deleted")
	require.NoError(t, st.SoftDeleteArticle(ctx, deleted.ID))

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Processing)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 6, stats.Total)
	assert.InDelta(t, 1.0/6.0, stats.CompletionRate(), 1e-9)
}

func TestCompletionRateEmpty(t *testing.T) {
	stats := &ProcessingStats{}
	assert.Zero(t, stats.CompletionRate())
}
