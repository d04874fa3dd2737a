package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PGVectorStore keeps vectors in Postgres with the pgvector extension. It is
// the self-hosted alternative to the managed REST backend; entries live in a
// single table partitioned by a namespace column.
type PGVectorStore struct {
	pool      *pgxpool.Pool
	table     string
	namespace string
	dimension int
	logger    *slog.Logger
}

// PGVectorConfig configures a PGVectorStore
type PGVectorConfig struct {
	ConnString string
	Table      string
	Namespace  string
	Dimension  int
}

// NewPGVectorStore connects to Postgres, ensures the pgvector extension,
// table, and index exist, and returns a Store bound to one namespace.
func NewPGVectorStore(ctx context.Context, cfg PGVectorConfig) (*PGVectorStore, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("%w: missing connection string", ErrUnsupportedBackend)
	}
	if cfg.Table == "" {
		cfg.Table = "article_vectors"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: parse connection string: %v", ErrStoreFailed, err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %v", ErrStoreFailed, err)
	}

	s := &PGVectorStore{
		pool:      pool,
		table:     cfg.Table,
		namespace: cfg.Namespace,
		dimension: cfg.Dimension,
		logger:    slog.Default().With("component", "pgvector-store"),
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGVectorStore) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("%w: create vector extension: %v", ErrStoreFailed, err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			title TEXT,
			url TEXT,
			source TEXT,
			published_date TEXT,
			sentiment DOUBLE PRECISION,
			content_hash TEXT,
			PRIMARY KEY (namespace, id)
		)`, s.table, s.dimension)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("%w: create table: %v", ErrStoreFailed, err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("%w: create index: %v", ErrStoreFailed, err)
	}

	return nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Vector), s.dimension)
	}

	md := truncateMetadata(entry.ID, entry.Metadata, s.logger)

	// Single-statement upsert: vector and metadata land atomically or not at all
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, namespace, embedding, title, url, source, published_date, sentiment, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (namespace, id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			source = EXCLUDED.source,
			published_date = EXCLUDED.published_date,
			sentiment = EXCLUDED.sentiment,
			content_hash = EXCLUDED.content_hash`, s.table)

	_, err := s.pool.Exec(ctx, stmt,
		entry.ID, s.namespace, pgvector.NewVector(entry.Vector),
		md.Title, md.URL, md.Source, md.PublishedDate, md.Sentiment, md.ContentHash)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrStoreFailed, entry.ID, err)
	}
	return nil
}

func (s *PGVectorStore) Delete(ctx context.Context, id string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND id = $2", s.table)
	if _, err := s.pool.Exec(ctx, stmt, s.namespace, id); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreFailed, id, err)
	}
	return nil
}

func (s *PGVectorStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]QueryHit, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		return []QueryHit{}, nil
	}

	query := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score,
		       title, url, source, published_date, sentiment, content_hash
		FROM %s
		WHERE namespace = $2`, s.table)
	args := []interface{}{pgvector.NewVector(vector), s.namespace}

	if filter != nil {
		if filter.Source != "" {
			args = append(args, filter.Source)
			query += fmt.Sprintf(" AND source = $%d", len(args))
		}
		if filter.SentimentMin != nil {
			args = append(args, *filter.SentimentMin)
			query += fmt.Sprintf(" AND sentiment >= $%d", len(args))
		}
		if filter.SentimentMax != nil {
			args = append(args, *filter.SentimentMax)
			query += fmt.Sprintf(" AND sentiment <= $%d", len(args))
		}
		if filter.PublishedAfter != nil {
			// RFC 3339 strings order lexicographically by instant
			args = append(args, filter.PublishedAfter.UTC().Format(time.RFC3339))
			query += fmt.Sprintf(" AND published_date >= $%d", len(args))
		}
	}

	args = append(args, topK)
	query += fmt.Sprintf(" ORDER BY score DESC, id ASC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrStoreFailed, err)
	}
	defer rows.Close()

	var hits []QueryHit
	for rows.Next() {
		var hit QueryHit
		err := rows.Scan(&hit.ID, &hit.Score,
			&hit.Metadata.Title, &hit.Metadata.URL, &hit.Metadata.Source,
			&hit.Metadata.PublishedDate, &hit.Metadata.Sentiment, &hit.Metadata.ContentHash)
		if err != nil {
			return nil, fmt.Errorf("%w: scan row: %v", ErrStoreFailed, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrStoreFailed, err)
	}

	return hits, nil
}

func (s *PGVectorStore) Dimension() int {
	return s.dimension
}

func (s *PGVectorStore) Close() error {
	s.pool.Close()
	return nil
}
