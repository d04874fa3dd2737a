package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DriverName is the registered database/sql driver
const DriverName = "sqlite"

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (creating if needed) the article database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateArticle(ctx context.Context, article *Article) error {
	if article.EmbeddingStatus == "" {
		article.EmbeddingStatus = StatusPending
	}
	now := time.Now().UTC()
	article.CreatedAt = now
	article.UpdatedAt = now

	query := `
		INSERT INTO articles (title, url, content, source, published_date,
			embedding_status, content_hash, search_vector_id, sentiment_score,
			last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		article.Title, article.URL, article.Content, article.Source, article.PublishedDate.UTC(),
		string(article.EmbeddingStatus), article.ContentHash, article.SearchVectorID,
		article.SentimentScore, article.LastError, now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: url %s", ErrAlreadyExists, article.URL)
		}
		return fmt.Errorf("insert article: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get article id: %w", err)
	}
	article.ID = id
	return nil
}

const articleColumns = `id, title, url, content, source, published_date,
	embedding_status, content_hash, search_vector_id, sentiment_score,
	last_error, created_at, updated_at, deleted_at`

func scanArticle(row interface{ Scan(...interface{}) error }) (*Article, error) {
	var a Article
	var status string
	var sentiment sql.NullFloat64
	var deletedAt sql.NullTime

	err := row.Scan(&a.ID, &a.Title, &a.URL, &a.Content, &a.Source, &a.PublishedDate,
		&status, &a.ContentHash, &a.SearchVectorID, &sentiment,
		&a.LastError, &a.CreatedAt, &a.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	a.EmbeddingStatus = EmbeddingStatus(status)
	if sentiment.Valid {
		a.SentimentScore = &sentiment.Float64
	}
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Time
	}
	return &a, nil
}

func (s *SQLiteStore) GetArticle(ctx context.Context, id int64) (*Article, error) {
	query := fmt.Sprintf("SELECT %s FROM articles WHERE id = ?", articleColumns)
	article, err := scanArticle(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get article %d: %w", id, err)
	}
	return article, nil
}

func (s *SQLiteStore) UpdateContent(ctx context.Context, id int64, title, content string) error {
	query := `
		UPDATE articles
		SET title = ?, content = ?, embedding_status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, title, content, string(StatusPending), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update content %d: %w", id, err)
	}
	return requireRow(result, id)
}

// ClaimArticle is the only operation allowed to move a row into processing.
// The guarded UPDATE is the compare-and-set: of any number of concurrent
// claims, the storage layer lets exactly one through.
func (s *SQLiteStore) ClaimArticle(ctx context.Context, id int64) error {
	query := `
		UPDATE articles
		SET embedding_status = ?, updated_at = ?
		WHERE id = ? AND embedding_status IN (?, ?) AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		string(StatusProcessing), time.Now().UTC(), id,
		string(StatusPending), string(StatusFailed))
	if err != nil {
		return fmt.Errorf("claim article %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim article %d: %w", id, err)
	}
	if affected == 0 {
		if _, err := s.GetArticle(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: id %d", ErrNotClaimable, id)
	}
	return nil
}

func (s *SQLiteStore) CompleteArticle(ctx context.Context, id int64, contentHash, vectorID string, sentiment float64) error {
	query := `
		UPDATE articles
		SET embedding_status = ?, content_hash = ?, search_vector_id = ?,
			sentiment_score = ?, last_error = '', updated_at = ?
		WHERE id = ? AND embedding_status = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(StatusCompleted), contentHash, vectorID, sentiment,
		time.Now().UTC(), id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("complete article %d: %w", id, err)
	}
	return requireTransition(ctx, s, result, id, StatusCompleted)
}

func (s *SQLiteStore) FailArticle(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE articles
		SET embedding_status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND embedding_status = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(StatusFailed), truncateReason(reason), time.Now().UTC(),
		id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("fail article %d: %w", id, err)
	}
	return requireTransition(ctx, s, result, id, StatusFailed)
}

func (s *SQLiteStore) RequeueArticle(ctx context.Context, id int64) error {
	query := `
		UPDATE articles
		SET embedding_status = ?, updated_at = ?
		WHERE id = ? AND embedding_status = ? AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query,
		string(StatusPending), time.Now().UTC(), id, string(StatusFailed))
	if err != nil {
		return fmt.Errorf("requeue article %d: %w", id, err)
	}
	return requireTransition(ctx, s, result, id, StatusPending)
}

func (s *SQLiteStore) ResetStuckProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `
		UPDATE articles
		SET embedding_status = ?, updated_at = ?
		WHERE embedding_status = ? AND updated_at < ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(StatusPending), time.Now().UTC(), string(StatusProcessing), cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stuck processing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset stuck processing: %w", err)
	}
	return int(affected), nil
}

func (s *SQLiteStore) ClearEmbedding(ctx context.Context, id int64) error {
	query := `
		UPDATE articles
		SET embedding_status = ?, content_hash = '', search_vector_id = '',
			sentiment_score = NULL, last_error = '', updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, string(StatusPending), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("clear embedding %d: %w", id, err)
	}
	return requireRow(result, id)
}

func (s *SQLiteStore) ListProcessable(ctx context.Context, limit int) ([]*Article, error) {
	if limit <= 0 {
		return []*Article{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM articles
		WHERE embedding_status IN (?, ?) AND deleted_at IS NULL
		ORDER BY updated_at ASC, id ASC
		LIMIT ?
	`, articleColumns)

	rows, err := s.db.QueryContext(ctx, query, string(StatusPending), string(StatusFailed), limit)
	if err != nil {
		return nil, fmt.Errorf("list processable: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []*Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list processable: %w", err)
	}
	return articles, nil
}

func (s *SQLiteStore) SoftDeleteArticle(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	query := `
		UPDATE articles
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("soft delete article %d: %w", id, err)
	}
	return requireRow(result, id)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*ProcessingStats, error) {
	query := `
		SELECT embedding_status, COUNT(*)
		FROM articles
		WHERE deleted_at IS NULL
		GROUP BY embedding_status
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &ProcessingStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}

		switch EmbeddingStatus(status) {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return stats, nil
}

// requireRow maps zero affected rows to ErrNotFound
func requireRow(result sql.Result, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// requireTransition maps zero affected rows to ErrInvalidTransition (or
// ErrNotFound when the row doesn't exist). Guarded UPDATEs reject illegal
// transitions at the storage layer; this surfaces them loudly.
func requireTransition(ctx context.Context, s *SQLiteStore, result sql.Result, id int64, to EmbeddingStatus) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	article, err := s.GetArticle(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s (article %d)", ErrInvalidTransition, article.EmbeddingStatus, to, id)
}

// truncateReason keeps failure reasons short enough for the row; operators
// get a summary, not a stack trace.
func truncateReason(reason string) string {
	const maxLen = 500
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
