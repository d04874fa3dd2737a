package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pressbox/vectorpipe/internal/embedder"
	"github.com/pressbox/vectorpipe/internal/fingerprint"
	"github.com/pressbox/vectorpipe/internal/store"
	"github.com/pressbox/vectorpipe/internal/vectorstore"
)

// DefaultConcurrency bounds simultaneous embedding calls per batch
const DefaultConcurrency = 3

// DefaultEmbedInterval spaces out embedding calls inside the concurrency
// window to stay under provider rate limits
const DefaultEmbedInterval = 200 * time.Millisecond

// BatchStats aggregates the outcome of one batch invocation.
// Processed == Succeeded + Failed holds for every invocation, and Messages
// carries exactly one entry per processed article.
type BatchStats struct {
	Processed int
	Succeeded int
	Failed    int
	Messages  []string
}

// Config tunes the batch processor
type Config struct {
	// Concurrency is the maximum number of articles processed at once.
	// Zero means DefaultConcurrency.
	Concurrency int

	// EmbedInterval is the minimum spacing between embedding calls across
	// all workers. Zero means DefaultEmbedInterval; negative disables pacing.
	EmbedInterval time.Duration
}

// Processor drives articles through the embedding pipeline: fingerprint
// check, claim, embed, upsert, finalize. Each article is processed
// independently; one article's failure never affects another's outcome.
type Processor struct {
	store       store.Store
	embedder    embedder.Embedder
	vectors     vectorstore.Store
	limiter     *rate.Limiter
	concurrency int
	logger      *slog.Logger
}

// New creates a Processor. The vector store must accept vectors of the
// embedder's dimensionality; config validation checks this before a
// Processor is ever constructed.
func New(st store.Store, emb embedder.Embedder, vec vectorstore.Store, cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	interval := cfg.EmbedInterval
	if interval == 0 {
		interval = DefaultEmbedInterval
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	return &Processor{
		store:       st,
		embedder:    emb,
		vectors:     vec,
		limiter:     limiter,
		concurrency: concurrency,
		logger:      logger.With("component", "pipeline"),
	}
}

// VectorID returns the stable vector store key for an article id. Assigned
// once and never reused across different content.
func VectorID(articleID int64) string {
	return fmt.Sprintf("article_%d", articleID)
}

// ProcessArticle runs one article through the pipeline. The bool reports
// success (including the unchanged-content no-op); the string is an
// operator-facing message. Per-article failures are recorded on the row and
// reported here, never panicked or swallowed.
func (p *Processor) ProcessArticle(ctx context.Context, id int64) (bool, string) {
	article, err := p.store.GetArticle(ctx, id)
	if err != nil {
		return false, fmt.Sprintf("Article %d not found: %v", id, err)
	}
	if article.DeletedAt != nil {
		return false, fmt.Sprintf("Article %d is deleted", id)
	}

	// The fingerprint gate runs before any claim or network call. Unchanged
	// completed articles are a successful no-op; no provider spend.
	hash := fingerprint.Compute(article.Title, article.Content)
	if hash == article.ContentHash && article.EmbeddingStatus == store.StatusCompleted {
		p.logger.Debug("content unchanged, skipping", "article_id", id)
		return true, fmt.Sprintf("Article %d unchanged, skipped", id)
	}

	if err := p.store.ClaimArticle(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotClaimable) {
			// another worker holds it; skipping is not a failure
			return true, fmt.Sprintf("Article %d claimed elsewhere, skipped", id)
		}
		return false, fmt.Sprintf("Failed to claim article %d: %v", id, err)
	}

	// From here the claim must resolve to completed or failed; returning
	// without a transition would leave the row stuck in processing.
	if err := p.limiter.Wait(ctx); err != nil {
		return false, p.fail(id, fmt.Errorf("canceled before embedding: %w", err))
	}

	text := article.Title + "\n\n" + article.Content
	emb, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return false, p.fail(id, fmt.Errorf("embedding failed: %w", err))
	}

	sentiment := scoreSentiment(article.Title + " " + article.Content)
	vectorID := VectorID(id)
	entry := vectorstore.Entry{
		ID:     vectorID,
		Vector: emb.Vector,
		Metadata: vectorstore.Metadata{
			Title:         article.Title,
			URL:           article.URL,
			Source:        article.Source,
			PublishedDate: article.PublishedDate.UTC().Format(time.RFC3339),
			Sentiment:     sentiment,
			ContentHash:   hash,
		},
	}
	if err := p.vectors.Upsert(ctx, entry); err != nil {
		return false, p.fail(id, fmt.Errorf("vector upsert failed: %w", err))
	}

	if err := p.store.CompleteArticle(ctx, id, hash, vectorID, sentiment); err != nil {
		// The vector is written but the row is still processing. Leave it for
		// stuck-state recovery rather than guessing at the database's state.
		p.logger.Error("failed to finalize article", "article_id", id, "error", err)
		return false, fmt.Sprintf("Failed to finalize article %d: %v", id, err)
	}

	p.logger.Info("article processed",
		"article_id", id, "vector_id", vectorID, "truncated", emb.Truncated)
	return true, fmt.Sprintf("Successfully processed article %d", id)
}

// fail moves a claimed article to failed and returns the operator message
func (p *Processor) fail(id int64, cause error) string {
	p.logger.Warn("article failed", "article_id", id, "error", cause)
	// deliberately not the caller's context: a canceled batch must still
	// move the claimed row out of processing
	if err := p.store.FailArticle(context.Background(), id, cause.Error()); err != nil {
		p.logger.Error("failed to record article failure", "article_id", id, "error", err)
	}
	return fmt.Sprintf("Failed to process article %d: %v", id, cause)
}

// ProcessBatch processes the given articles with bounded concurrency.
// Articles complete in no particular order; only the aggregate counts and
// the one-message-per-article guarantee are stable.
func (p *Processor) ProcessBatch(ctx context.Context, ids []int64) *BatchStats {
	stats := &BatchStats{}
	if len(ids) == 0 {
		return stats
	}

	var succeeded, failed int32
	var mu sync.Mutex
	semaphore := make(chan struct{}, p.concurrency)

	g, gctx := errgroup.WithContext(ctx)
scheduling:
	for _, id := range ids {
		select {
		case semaphore <- struct{}{}:
		case <-gctx.Done():
			// stop scheduling; in-flight articles run to completion
			break scheduling
		}

		id := id
		g.Go(func() error {
			defer func() { <-semaphore }()

			ok, msg := p.ProcessArticle(gctx, id)
			if ok {
				atomic.AddInt32(&succeeded, 1)
			} else {
				atomic.AddInt32(&failed, 1)
			}

			mu.Lock()
			stats.Messages = append(stats.Messages, msg)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	stats.Succeeded = int(succeeded)
	stats.Failed = int(failed)
	stats.Processed = stats.Succeeded + stats.Failed
	p.logger.Info("batch finished",
		"processed", stats.Processed, "succeeded", stats.Succeeded, "failed", stats.Failed)
	return stats
}

// ProcessPending selects up to limit pending or failed articles, oldest
// first, and processes them as one batch.
func (p *Processor) ProcessPending(ctx context.Context, limit int) (*BatchStats, error) {
	articles, err := p.store.ListProcessable(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list processable articles: %w", err)
	}

	ids := make([]int64, len(articles))
	for i, article := range articles {
		ids[i] = article.ID
	}
	return p.ProcessBatch(ctx, ids), nil
}

// DeleteEmbedding removes an article's vector entry and clears the
// pipeline-owned columns, returning the row to pending. Deleting an article
// with no vector entry is a no-op on the store side.
func (p *Processor) DeleteEmbedding(ctx context.Context, id int64) error {
	article, err := p.store.GetArticle(ctx, id)
	if err != nil {
		return err
	}

	if article.SearchVectorID != "" {
		if err := p.vectors.Delete(ctx, article.SearchVectorID); err != nil {
			return fmt.Errorf("delete vector %s: %w", article.SearchVectorID, err)
		}
	}

	if err := p.store.ClearEmbedding(ctx, id); err != nil {
		return err
	}
	p.logger.Info("embedding deleted", "article_id", id)
	return nil
}
