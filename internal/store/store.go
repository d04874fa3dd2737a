package store

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	// ErrNotFound is returned when a requested article doesn't exist
	ErrNotFound = errors.New("article not found")
	// ErrAlreadyExists is returned when inserting a duplicate URL
	ErrAlreadyExists = errors.New("article already exists")
	// ErrNotClaimable is returned when a claim loses the race or the article
	// is not in a claimable state. Workers skip the article without error.
	ErrNotClaimable = errors.New("article not claimable")
	// ErrInvalidTransition is returned for any status transition the
	// lifecycle does not permit. Never silently ignored.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// EmbeddingStatus is the per-article pipeline lifecycle state
type EmbeddingStatus string

// Lifecycle states. pending → processing → completed|failed; failed and
// stuck-processing rows may return to pending.
const (
	StatusPending    EmbeddingStatus = "pending"
	StatusProcessing EmbeddingStatus = "processing"
	StatusCompleted  EmbeddingStatus = "completed"
	StatusFailed     EmbeddingStatus = "failed"
)

// Article is the relational row. Title, URL, Content, Source, and
// PublishedDate are produced by crawlers; this pipeline owns
// EmbeddingStatus, ContentHash, SearchVectorID, SentimentScore, LastError,
// and UpdatedAt.
type Article struct {
	ID            int64
	Title         string
	URL           string
	Content       string
	Source        string
	PublishedDate time.Time

	EmbeddingStatus EmbeddingStatus
	ContentHash     string
	SearchVectorID  string
	SentimentScore  *float64
	LastError       string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ProcessingStats holds per-state article counts for observability
type ProcessingStats struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Total      int
}

// CompletionRate returns the fraction of articles in completed state
func (s *ProcessingStats) CompletionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

// Store persists articles and enforces the processing state machine. The
// embedding_status column is the single source of truth for article
// ownership; only ClaimArticle moves a row into processing, and it does so
// atomically so concurrent workers cannot double-claim.
type Store interface {
	// CreateArticle inserts a crawled article in pending state
	CreateArticle(ctx context.Context, article *Article) error

	// GetArticle returns one article by id
	GetArticle(ctx context.Context, id int64) (*Article, error)

	// UpdateContent replaces title/content after a re-crawl and returns the
	// article to pending so it gets re-embedded
	UpdateContent(ctx context.Context, id int64, title, content string) error

	// ClaimArticle atomically transitions pending|failed → processing.
	// Exactly one of any number of concurrent claims succeeds; losers get
	// ErrNotClaimable.
	ClaimArticle(ctx context.Context, id int64) error

	// CompleteArticle transitions processing → completed, recording the
	// content hash, vector id, and sentiment in the same statement
	CompleteArticle(ctx context.Context, id int64, contentHash, vectorID string, sentiment float64) error

	// FailArticle transitions processing → failed with a short reason
	FailArticle(ctx context.Context, id int64, reason string) error

	// RequeueArticle transitions failed → pending for an explicit retry
	RequeueArticle(ctx context.Context, id int64) error

	// ResetStuckProcessing returns articles stuck in processing longer than
	// olderThan back to pending. Returns the number reset.
	ResetStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error)

	// ClearEmbedding wipes the pipeline-owned columns and returns the row
	// to pending, after its vector entry has been deleted
	ClearEmbedding(ctx context.Context, id int64) error

	// ListProcessable returns up to limit articles in pending or failed
	// state, oldest first
	ListProcessable(ctx context.Context, limit int) ([]*Article, error)

	// SoftDeleteArticle marks an article deleted. Ids are never recycled,
	// so a vector id can never alias a different article.
	SoftDeleteArticle(ctx context.Context, id int64) error

	// Stats returns per-state counts over non-deleted articles
	Stats(ctx context.Context) (*ProcessingStats, error)

	// Close closes the underlying database
	Close() error
}
