// Package vectorstore wraps the vector database holding article embeddings.
//
// A Store is bound to one namespace; entries for other content classes live
// in other namespaces and never leak into a query. Three backends exist
// behind the factory:
//
//   - rest: a managed Pinecone-style HTTP API, with backoff retry on rate
//     limits and server errors
//   - pgvector: self-hosted Postgres with the pgvector extension
//   - memory: an in-process index for tests and offline runs
//
// Upserts are all-or-nothing: the vector and its metadata land together or
// the previous state of the id is intact. String metadata values longer
// than MaxMetadataChars are truncated before upsert; that is logged, never
// fatal. Query results come back ordered by descending similarity with ties
// broken by ascending id, so rankings are deterministic.
package vectorstore
