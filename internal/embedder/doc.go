// Package embedder generates vector embeddings for article text.
//
// The embedder wraps an OpenAI-compatible embeddings endpoint with input
// truncation, exponential-backoff retry, and LRU caching, and exposes a
// deterministic local provider for offline use.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    apiKey,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.Embed(ctx, article.Title+"\n\n"+article.Content)
//	fmt.Printf("vector dimension: %d\n", len(result.Vector))
//
// # Error Handling
//
// Failures split into two kinds callers can match on:
//
//   - ErrInvalidInput: empty text. Permanent, never retried; the caller
//     should fail the article immediately.
//   - ErrProviderFailed: rate limits, 5xx responses, network errors, and
//     timeouts after backoff retries are exhausted. The last attempt's
//     error is wrapped for operator visibility.
//
// # Truncation
//
// Input longer than MaxInputChars is cut to exactly that budget and
// TruncationMarker is appended, so the provider sees a bounded payload and
// downstream consumers can tell the embedding reflects partial content.
// Truncation happens before any network call.
package embedder
