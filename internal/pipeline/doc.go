// Package pipeline orchestrates article embedding: fingerprint check,
// atomic claim, embedding call, vector upsert, and state finalization.
//
// Articles in a batch are processed concurrently up to a bounded limit
// (default 3 simultaneous embedding calls), with a rate gate spacing out
// provider requests inside that window. Each article is independent: its
// failure is recorded on its own row and counted in the batch stats, never
// propagated to other articles or to the batch as an error.
//
// The content fingerprint is the idempotence gate. An article whose hash
// matches the recorded hash while already completed is skipped before any
// claim or network call, so repeated sweeps over unchanged content cost
// nothing.
//
// Sentiment is recomputed alongside every embedding from a small lexicon
// and stored both on the row and in the vector metadata, where search uses
// it for bucket filtering.
package pipeline
