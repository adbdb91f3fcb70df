package core

import (
	"context"
	"time"
)

// MemoryKind classifies what a long-term memory captures.
type MemoryKind string

const (
	// MemoryFact is durable information about the user or the world.
	MemoryFact MemoryKind = "fact"
	// MemoryPreference captures likes, dislikes and standing instructions.
	MemoryPreference MemoryKind = "preference"
	// MemoryEmotion captures notable emotional context.
	MemoryEmotion MemoryKind = "emotion"
)

// MemoryRecord is a single long-term memory owned by the semantic store. It
// is immutable once stored; the only permitted mutation is deletion.
type MemoryRecord struct {
	ID        string     `json:"id"`
	Text      string     `json:"text"`
	Embedding []float32  `json:"embedding"`
	SessionID string     `json:"session_id"`
	CreatedAt time.Time  `json:"created_at"`
	Kind      MemoryKind `json:"memory_kind"`
}

// SearchResult pairs a retrieved record with its similarity score.
type SearchResult struct {
	Record MemoryRecord `json:"record"`
	Score  float64      `json:"score"`
}

// VectorIndex is the pluggable nearest-neighbor backend beneath the semantic
// store. Implementations must scope every operation strictly to the given
// session id; records from other sessions must never be visible.
type VectorIndex interface {
	// Insert persists a record under its session.
	Insert(ctx context.Context, rec MemoryRecord) error

	// Query returns up to k records of the session ordered by descending
	// cosine similarity to the embedding.
	Query(ctx context.Context, sessionID string, embedding []float32, k int) ([]SearchResult, error)

	// Count reports how many records the session holds. An empty session id
	// counts records across all sessions.
	Count(ctx context.Context, sessionID string) (int, error)

	// Delete removes a record by id within a session.
	Delete(ctx context.Context, sessionID, id string) error
}

// StoreOutcome reports what happened to a memory store request. Skipped
// outcomes are normal results, not errors: the caller keeps functioning
// without memory rather than failing the turn.
type StoreOutcome int

const (
	// OutcomeStored means a new record was persisted.
	OutcomeStored StoreOutcome = iota
	// OutcomeSkippedDuplicate means a near-duplicate already existed in the
	// session.
	OutcomeSkippedDuplicate
	// OutcomeSkippedUnavailable means the store dependency was unreachable
	// (breaker open or retries exhausted).
	OutcomeSkippedUnavailable
)

// String returns a human-readable outcome name.
func (o StoreOutcome) String() string {
	switch o {
	case OutcomeStored:
		return "stored"
	case OutcomeSkippedDuplicate:
		return "skipped_duplicate"
	case OutcomeSkippedUnavailable:
		return "skipped_unavailable"
	default:
		return "unknown"
	}
}
