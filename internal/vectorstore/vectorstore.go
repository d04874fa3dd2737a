package vectorstore

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Common errors
var (
	// ErrStoreFailed marks upsert/query/delete failures against the backing
	// store. Callers must treat a failed upsert as fully failed; no partial
	// vector-without-metadata state is ever left behind.
	ErrStoreFailed = errors.New("vector store operation failed")
	// ErrDimensionMismatch is returned when a vector's length does not match
	// the store's configured dimensionality
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnsupportedBackend is returned by the factory for unknown backend names
	ErrUnsupportedBackend = errors.New("unsupported vector store backend")
)

// MaxMetadataChars is the store-imposed size limit for string metadata
// values. Oversized values are truncated, logged, and the upsert proceeds.
const MaxMetadataChars = 512

// DefaultNamespace is the logical partition holding article vectors
const DefaultNamespace = "articles"

// Metadata is the denormalized payload stored beside each vector. String
// fields are truncated to MaxMetadataChars before upsert.
type Metadata struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Source        string  `json:"source"`
	PublishedDate string  `json:"published_date"` // RFC 3339
	Sentiment     float64 `json:"sentiment"`
	ContentHash   string  `json:"content_hash"`
}

// Entry is a vector plus metadata keyed by an external id (article_{id})
type Entry struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// QueryHit is one match from a similarity query
type QueryHit struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// Filter restricts similarity queries by metadata. Nil pointer fields are
// unconstrained.
type Filter struct {
	Source         string     // Exact source match
	SentimentMin   *float64   // Inclusive lower bound
	SentimentMax   *float64   // Inclusive upper bound
	PublishedAfter *time.Time // Only entries published at or after this instant
}

// Store wraps a vector database namespace. Entries for different content
// classes live in separate namespaces; a query never crosses namespaces.
type Store interface {
	// Upsert inserts or replaces an entry. All-or-nothing: on error the
	// previous state of the id is intact.
	Upsert(ctx context.Context, entry Entry) error

	// Delete removes an entry. Deleting a non-existent id is a success.
	Delete(ctx context.Context, id string) error

	// Query returns up to topK hits ordered by descending similarity score,
	// ties broken by ascending id.
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]QueryHit, error)

	// Dimension returns the configured vector dimensionality
	Dimension() int

	// Close releases backend resources
	Close() error
}

// truncateMetadata enforces MaxMetadataChars on string values. Non-fatal:
// the entry is stored with the truncated values.
func truncateMetadata(id string, md Metadata, logger *slog.Logger) Metadata {
	md.Title = truncateValue(id, "title", md.Title, logger)
	md.URL = truncateValue(id, "url", md.URL, logger)
	md.Source = truncateValue(id, "source", md.Source, logger)
	md.ContentHash = truncateValue(id, "content_hash", md.ContentHash, logger)
	return md
}

func truncateValue(id, field, value string, logger *slog.Logger) string {
	runes := []rune(value)
	if len(runes) <= MaxMetadataChars {
		return value
	}
	if logger != nil {
		logger.Warn("truncating oversized metadata value",
			"id", id, "field", field, "length", len(runes), "limit", MaxMetadataChars)
	}
	return string(runes[:MaxMetadataChars])
}

// matches reports whether metadata satisfies a filter
func (f *Filter) matches(md Metadata) bool {
	if f == nil {
		return true
	}
	if f.Source != "" && md.Source != f.Source {
		return false
	}
	if f.SentimentMin != nil && md.Sentiment < *f.SentimentMin {
		return false
	}
	if f.SentimentMax != nil && md.Sentiment > *f.SentimentMax {
		return false
	}
	if f.PublishedAfter != nil {
		published, err := time.Parse(time.RFC3339, md.PublishedDate)
		if err != nil || published.Before(*f.PublishedAfter) {
			return false
		}
	}
	return true
}
