package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pressbox/vectorpipe/internal/retry"
)

// DefaultTimeout bounds each vector database call
const DefaultTimeout = 30 * time.Second

// RESTStore talks to a Pinecone-style vector database over HTTP. One
// RESTStore instance is bound to a single index endpoint and namespace.
type RESTStore struct {
	baseURL    string
	apiKey     string
	namespace  string
	dimension  int
	httpClient *http.Client
	retryCfg   retry.Config
}

// RESTConfig configures a RESTStore
type RESTConfig struct {
	BaseURL   string
	APIKey    string
	Namespace string
	Dimension int
	Timeout   time.Duration
	Retry     *retry.Config
}

// NewRESTStore creates a Store backed by a remote vector database endpoint
func NewRESTStore(cfg RESTConfig) (*RESTStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: missing endpoint URL", ErrUnsupportedBackend)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrUnsupportedBackend)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	retryCfg := retry.DefaultConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}

	return &RESTStore{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		namespace:  cfg.Namespace,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryCfg:   retryCfg,
	}, nil
}

func (r *RESTStore) Upsert(ctx context.Context, entry Entry) error {
	if len(entry.Vector) != r.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Vector), r.dimension)
	}

	entry.Metadata = truncateMetadata(entry.ID, entry.Metadata, nil)

	body := map[string]interface{}{
		"vectors": []map[string]interface{}{
			{
				"id":       entry.ID,
				"values":   entry.Vector,
				"metadata": entry.Metadata,
			},
		},
		"namespace": r.namespace,
	}

	_, err := retry.Do(ctx, r.retryCfg, func() (struct{}, error) {
		return struct{}{}, r.post(ctx, "/vectors/upsert", body, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ErrStoreFailed, entry.ID, err)
	}
	return nil
}

func (r *RESTStore) Delete(ctx context.Context, id string) error {
	body := map[string]interface{}{
		"ids":       []string{id},
		"namespace": r.namespace,
	}

	_, err := retry.Do(ctx, r.retryCfg, func() (struct{}, error) {
		return struct{}{}, r.post(ctx, "/vectors/delete", body, nil)
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStoreFailed, id, err)
	}
	return nil
}

func (r *RESTStore) Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]QueryHit, error) {
	if len(vector) != r.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), r.dimension)
	}
	if topK <= 0 {
		return []QueryHit{}, nil
	}

	body := map[string]interface{}{
		"vector":          vector,
		"topK":            topK,
		"namespace":       r.namespace,
		"includeMetadata": true,
	}
	if f := buildFilter(filter); f != nil {
		body["filter"] = f
	}

	var resp struct {
		Matches []struct {
			ID       string   `json:"id"`
			Score    float64  `json:"score"`
			Metadata Metadata `json:"metadata"`
		} `json:"matches"`
	}

	_, err := retry.Do(ctx, r.retryCfg, func() (struct{}, error) {
		return struct{}{}, r.post(ctx, "/query", body, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrStoreFailed, err)
	}

	hits := make([]QueryHit, len(resp.Matches))
	for i, m := range resp.Matches {
		hits[i] = QueryHit{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return hits, nil
}

func (r *RESTStore) Dimension() int {
	return r.dimension
}

func (r *RESTStore) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

// post sends a JSON request and decodes the response into out when non-nil
func (r *RESTStore) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return retry.MarkTransient(fmt.Errorf("api call: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.MarkTransient(apiErr)
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// buildFilter converts a Filter into the store's metadata filter expression
func buildFilter(f *Filter) map[string]interface{} {
	if f == nil {
		return nil
	}

	out := make(map[string]interface{})
	if f.Source != "" {
		out["source"] = map[string]interface{}{"$eq": f.Source}
	}

	sentiment := make(map[string]interface{})
	if f.SentimentMin != nil {
		sentiment["$gte"] = *f.SentimentMin
	}
	if f.SentimentMax != nil {
		sentiment["$lte"] = *f.SentimentMax
	}
	if len(sentiment) > 0 {
		out["sentiment"] = sentiment
	}

	if f.PublishedAfter != nil {
		// RFC 3339 strings order lexicographically by instant
		out["published_date"] = map[string]interface{}{"$gte": f.PublishedAfter.UTC().Format(time.RFC3339)}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
