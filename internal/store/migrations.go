package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; user_version tracks the last applied one
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		published_date DATETIME NOT NULL,
		embedding_status TEXT NOT NULL DEFAULT 'pending',
		content_hash TEXT NOT NULL DEFAULT '',
		search_vector_id TEXT NOT NULL DEFAULT '',
		sentiment_score REAL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		deleted_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_embedding_status ON articles(embedding_status)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_source_date ON articles(source, published_date)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles(content_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_search_vector_id ON articles(search_vector_id)`,
}

// applyMigrations brings the schema up to date
func applyMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		if _, err := db.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			return fmt.Errorf("record schema version %d: %w", i+1, err)
		}
	}

	return nil
}
