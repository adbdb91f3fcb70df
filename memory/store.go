package memory

import (
	"context"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/resilience"
)

// DefaultDuplicateThreshold is the cosine similarity at or above which a new
// memory is considered redundant with an existing one in the same session.
const DefaultDuplicateThreshold = 0.90

// StoreResult reports the outcome of a store request. A skip is a normal
// result, not an error.
type StoreResult struct {
	Outcome core.StoreOutcome
	// Record is set only when Outcome is OutcomeStored.
	Record *core.MemoryRecord
	// Similarity is the nearest-neighbor score that caused a duplicate skip.
	Similarity float64
}

// Health reports semantic store reachability for health surfaces.
type Health struct {
	Reachable   bool `json:"reachable"`
	RecordCount int  `json:"record_count"`
}

// SemanticStore is the long-term vector memory. Every embed and index
// operation goes through the store's retry executor (and therefore its
// circuit breaker); when the dependency is unavailable after retries the
// store degrades instead of failing: Store reports a skip and Search returns
// an empty result set so the conversation turn keeps functioning without
// memory.
//
// Write-time deduplication is best effort: the nearest-neighbor check and
// the insert are not atomic, so concurrent near-duplicate stores for the
// same session can both succeed.
type SemanticStore struct {
	index    core.VectorIndex
	embedder core.Embedder
	executor *resilience.Executor

	duplicateThreshold float64
	logger             logging.Logger
	sink               core.EventSink
}

// StoreOptions holds optional overrides for a SemanticStore.
type StoreOptions struct {
	// DuplicateThreshold overrides DefaultDuplicateThreshold.
	DuplicateThreshold float64
	// Executor protects embed/index calls. Defaults to a fresh executor over
	// a breaker named "semantic-store".
	Executor *resilience.Executor
	// Logger receives store decision logs. Defaults to NoOpLogger.
	Logger logging.Logger
	// Sink receives MemoryDecision events. Defaults to NoopSink.
	Sink core.EventSink
}

// NewSemanticStore creates a semantic store over the given index and embedder.
func NewSemanticStore(index core.VectorIndex, embedder core.Embedder, optFns ...func(o *StoreOptions)) *SemanticStore {
	opts := StoreOptions{
		DuplicateThreshold: DefaultDuplicateThreshold,
		Logger:             logging.NoOpLogger{},
		Sink:               core.NoopSink{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Executor == nil {
		opts.Executor = resilience.NewExecutor(resilience.NewCircuitBreaker("semantic-store"))
	}
	return &SemanticStore{
		index:              index,
		embedder:           embedder,
		executor:           opts.Executor,
		duplicateThreshold: opts.DuplicateThreshold,
		logger:             opts.Logger,
		sink:               opts.Sink,
	}
}

// Store embeds text and persists it as a new memory record unless the
// session already holds a near-duplicate. Dependency failures after retries
// are absorbed into a skipped-unavailable result.
func (s *SemanticStore) Store(ctx context.Context, text string, kind core.MemoryKind, sessionID string) (StoreResult, error) {
	if text == "" {
		return StoreResult{}, &core.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if sessionID == "" {
		return StoreResult{}, &core.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}

	embedding, err := s.embed(ctx, text)
	if err != nil {
		return s.skipUnavailable(sessionID, err), nil
	}

	// Best-effort dedup: nearest neighbor within the session only.
	var nearest []core.SearchResult
	err = s.executor.Execute(ctx, func(ctx context.Context) error {
		results, qerr := s.index.Query(ctx, sessionID, embedding, 1)
		if qerr != nil {
			return core.Transient("memory query", qerr)
		}
		nearest = results
		return nil
	})
	if err != nil {
		return s.skipUnavailable(sessionID, err), nil
	}

	if len(nearest) > 0 && nearest[0].Score >= s.duplicateThreshold {
		s.logger.Debug("memory skipped as duplicate session=%s similarity=%.3f of=%s", sessionID, nearest[0].Score, nearest[0].Record.ID)
		s.sink.Emit(core.MemoryDecision{
			SessionID:  sessionID,
			Outcome:    core.OutcomeSkippedDuplicate.String(),
			RecordID:   nearest[0].Record.ID,
			Similarity: nearest[0].Score,
		})
		return StoreResult{Outcome: core.OutcomeSkippedDuplicate, Similarity: nearest[0].Score}, nil
	}

	rec := core.MemoryRecord{
		ID:        core.NewID(),
		Text:      text,
		Embedding: embedding,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
		Kind:      kind,
	}
	err = s.executor.Execute(ctx, func(ctx context.Context) error {
		if ierr := s.index.Insert(ctx, rec); ierr != nil {
			return core.Transient("memory insert", ierr)
		}
		return nil
	})
	if err != nil {
		return s.skipUnavailable(sessionID, err), nil
	}

	s.sink.Emit(core.MemoryDecision{SessionID: sessionID, Outcome: core.OutcomeStored.String(), RecordID: rec.ID})
	return StoreResult{Outcome: core.OutcomeStored, Record: &rec}, nil
}

// Search embeds the query and returns the session's top-k records by
// descending similarity. Records of other sessions are never returned.
// Embedding or index failure after retries yields an empty result set.
func (s *SemanticStore) Search(ctx context.Context, queryText string, k int, sessionID string) ([]core.SearchResult, error) {
	if sessionID == "" {
		return nil, &core.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if queryText == "" || k <= 0 {
		return []core.SearchResult{}, nil
	}

	embedding, err := s.embed(ctx, queryText)
	if err != nil {
		s.logger.Warn("memory search degraded to empty results session=%s err=%v", sessionID, err)
		return []core.SearchResult{}, nil
	}

	var results []core.SearchResult
	err = s.executor.Execute(ctx, func(ctx context.Context) error {
		r, qerr := s.index.Query(ctx, sessionID, embedding, k)
		if qerr != nil {
			return core.Transient("memory query", qerr)
		}
		results = r
		return nil
	})
	if err != nil {
		s.logger.Warn("memory search degraded to empty results session=%s err=%v", sessionID, err)
		return []core.SearchResult{}, nil
	}
	return results, nil
}

// Health probes the index and reports reachability plus total record count.
func (s *SemanticStore) Health(ctx context.Context) Health {
	var count int
	err := s.executor.Execute(ctx, func(ctx context.Context) error {
		c, cerr := s.index.Count(ctx, "")
		if cerr != nil {
			return core.Transient("memory count", cerr)
		}
		count = c
		return nil
	})
	return Health{Reachable: err == nil, RecordCount: count}
}

func (s *SemanticStore) embed(ctx context.Context, text string) ([]float32, error) {
	var embedding []float32
	err := s.executor.Execute(ctx, func(ctx context.Context) error {
		e, eerr := s.embedder.Embed(ctx, text)
		if eerr != nil {
			return core.Transient("embed", eerr)
		}
		embedding = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embedding, nil
}

func (s *SemanticStore) skipUnavailable(sessionID string, err error) StoreResult {
	s.logger.Warn("memory store skipped, dependency unavailable session=%s err=%v", sessionID, err)
	s.sink.Emit(core.MemoryDecision{SessionID: sessionID, Outcome: core.OutcomeSkippedUnavailable.String()})
	return StoreResult{Outcome: core.OutcomeSkippedUnavailable}
}
