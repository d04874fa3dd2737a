// Package config loads and validates pipeline configuration from a YAML
// file plus environment variables. Credentials are environment-only.
// Validation runs at startup and fails fast: a missing credential or a
// dimension mismatch between embedder and vector store never reaches the
// pipeline.
package config
