package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/parleyhq/parley/core"
)

// InMemoryIndex is a process-local core.VectorIndex performing exact cosine
// scans over session-scoped record maps.
//
// Concurrency: protected by RWMutex.
// Query: linear scan over the session's records ordered by descending
// similarity. Suitable for tests, demos and small installations; swap for
// the chromem-backed index (or another vector database) for larger corpora.
type InMemoryIndex struct {
	mu      sync.RWMutex
	records map[string]map[string]core.MemoryRecord // sessionID -> recordID -> record
}

// NewInMemoryIndex creates an empty in-memory vector index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{records: make(map[string]map[string]core.MemoryRecord)}
}

// Insert stores a record under its session.
func (m *InMemoryIndex) Insert(_ context.Context, rec core.MemoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.SessionID]; !ok {
		m.records[rec.SessionID] = make(map[string]core.MemoryRecord)
	}
	m.records[rec.SessionID][rec.ID] = rec
	return nil
}

// Query returns up to k session records ordered by descending cosine
// similarity. Records from other sessions are never considered.
func (m *InMemoryIndex) Query(_ context.Context, sessionID string, embedding []float32, k int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.records[sessionID]
	if !ok || k <= 0 {
		return []core.SearchResult{}, nil
	}
	results := make([]core.SearchResult, 0, len(session))
	for _, rec := range session {
		results = append(results, core.SearchResult{Record: rec, Score: Cosine(embedding, rec.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		// Stable tiebreak so repeated queries return identical orderings.
		return results[i].Record.ID < results[j].Record.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count reports how many records the session holds. An empty session id
// counts records across all sessions.
func (m *InMemoryIndex) Count(_ context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sessionID != "" {
		return len(m.records[sessionID]), nil
	}
	total := 0
	for _, session := range m.records {
		total += len(session)
	}
	return total, nil
}

// Delete removes a record by id within a session.
func (m *InMemoryIndex) Delete(_ context.Context, sessionID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.records[sessionID]
	if !ok {
		return fmt.Errorf("memory record not found")
	}
	if _, ok := session[id]; !ok {
		return fmt.Errorf("memory record not found")
	}
	delete(session, id)
	return nil
}
