// Package memory implements Parley's long-term semantic memory: a
// deduplicated, session-isolated vector store plus the coordinator that
// decides what to persist and what to recall.
//
// The SemanticStore embeds text, rejects near-duplicates within a session
// and degrades gracefully: when the protecting circuit breaker is open or
// retries are exhausted, stores report a skip and searches return empty
// results instead of failing the conversation turn.
//
// The VectorIndex contract lives in the core package. Import
// github.com/parleyhq/parley/core and depend on core.VectorIndex in your
// code; select an implementation (the in-memory index below, or the
// chromem-go backed index in the chromem subpackage) at wiring time.
package memory
