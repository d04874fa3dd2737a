// Package store persists articles in SQLite and enforces the embedding
// lifecycle state machine.
//
// Every article carries an embedding_status column that moves through
// pending, processing, completed, and failed. Transitions are enforced at
// the storage layer with guarded UPDATE statements: a transition the
// lifecycle does not permit affects zero rows and surfaces as
// ErrInvalidTransition rather than silently corrupting state.
//
// ClaimArticle is the concurrency primitive. It performs an atomic
// compare-and-set from pending or failed into processing, so any number of
// concurrent workers targeting the same article resolve to exactly one
// winner; the rest receive ErrNotClaimable and skip the article.
//
// Crash recovery is explicit: ResetStuckProcessing returns rows that have
// sat in processing past a cutoff back to pending, where the next batch run
// picks them up.
//
// Basic usage:
//
//	st, err := store.NewSQLiteStore("articles.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	if err := st.ClaimArticle(ctx, id); err != nil {
//		// someone else got it, or it is already completed
//	}
package store
