// Package chromem provides a core.VectorIndex backed by chromem-go, a pure
// Go embedded vector database. Each session gets its own collection so
// isolation holds at the storage layer, with a session_id metadata filter as
// a second guard on every query.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/parleyhq/parley/core"
)

// Index wraps chromem-go as a session-scoped vector index.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection // per-session collections
	mu          sync.RWMutex
}

// New creates an empty in-process chromem index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

// getOrCreateCollection returns the collection for a session.
func (x *Index) getOrCreateCollection(sessionID string) (*chromem.Collection, error) {
	x.mu.RLock()
	col, exists := x.collections[sessionID]
	x.mu.RUnlock()
	if exists {
		return col, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	// Double-check after acquiring the write lock.
	if col, exists := x.collections[sessionID]; exists {
		return col, nil
	}

	col, err := x.db.CreateCollection(
		fmt.Sprintf("session_%s", sessionID),
		nil, // collection metadata
		nil, // no embedding func: we always provide embeddings
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	x.collections[sessionID] = col
	return col, nil
}

// Insert implements core.VectorIndex.
func (x *Index) Insert(ctx context.Context, rec core.MemoryRecord) error {
	col, err := x.getOrCreateCollection(rec.SessionID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata: map[string]string{
			"session_id": rec.SessionID,
			"kind":       string(rec.Kind),
			"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query implements core.VectorIndex. Results are scoped to the session's
// collection and additionally filtered on the session_id metadata.
func (x *Index) Query(ctx context.Context, sessionID string, embedding []float32, k int) ([]core.SearchResult, error) {
	col, err := x.getOrCreateCollection(sessionID)
	if err != nil {
		return nil, err
	}

	where := map[string]string{"session_id": sessionID}

	// chromem-go requires nResults <= collection size; retry with smaller
	// limits until the query fits.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		results, err = col.QueryEmbedding(ctx, embedding, limit, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if limit == 1 {
				return []core.SearchResult{}, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]core.SearchResult, 0, len(results))
	for _, r := range results {
		rec, err := recordFromResult(sessionID, r)
		if err != nil {
			continue
		}
		out = append(out, core.SearchResult{Record: rec, Score: float64(r.Similarity)})
	}
	return out, nil
}

// Count implements core.VectorIndex. An empty session id counts all sessions.
func (x *Index) Count(_ context.Context, sessionID string) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if sessionID != "" {
		col, ok := x.collections[sessionID]
		if !ok {
			return 0, nil
		}
		return col.Count(), nil
	}
	total := 0
	for _, col := range x.collections {
		total += col.Count()
	}
	return total, nil
}

// Delete is not supported by the embedded chromem backend; records decay via
// out-of-band retention instead. Callers needing deletion should use the
// in-memory index or a server-backed store.
func (x *Index) Delete(context.Context, string, string) error {
	return fmt.Errorf("delete not supported by chromem index")
}

func recordFromResult(sessionID string, r chromem.Result) (core.MemoryRecord, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
	if err != nil {
		return core.MemoryRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	return core.MemoryRecord{
		ID:        r.ID,
		Text:      r.Content,
		Embedding: r.Embedding,
		SessionID: sessionID,
		CreatedAt: createdAt,
		Kind:      core.MemoryKind(r.Metadata["kind"]),
	}, nil
}

// isInsufficientDocsError checks whether the query failed only because the
// collection holds fewer documents than requested.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
