// Package search answers semantic queries over the article vector index.
//
// A query is embedded with the same model and dimensionality as the
// articles themselves, then handed to the vector store along with any
// metadata filters: source equality, a sentiment bucket (positive,
// negative, neutral), or a published-after cutoff. Results come back in
// the store's descending-score order and are returned as-is; the service
// never re-sorts.
//
// Results are denormalized from vector metadata. A hit with incomplete
// metadata gets zero-valued fields rather than failing the search, and a
// vector store outage yields an empty result list plus the error so the
// caller can degrade gracefully.
package search
