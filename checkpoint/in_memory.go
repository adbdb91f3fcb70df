package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
)

// chain is the arena of one thread's checkpoints: records indexed by id with
// explicit parent pointers, plus append order. Flat and serializable; no
// pointer-linked structures.
type chain struct {
	byID  map[string]core.Checkpoint
	order []string
}

// InMemoryStore is a volatile core.CheckpointStore keeping chains in process
// local maps. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Each returned checkpoint is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*chain
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string]*chain)}
}

// Append implements core.CheckpointStore.
func (s *InMemoryStore) Append(_ context.Context, cp core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.threads[cp.ThreadID]
	if !ok {
		c = &chain{byID: make(map[string]core.Checkpoint)}
		s.threads[cp.ThreadID] = c
	}
	c.byID[cp.CheckpointID] = cloneCheckpoint(cp)
	c.order = append(c.order, cp.CheckpointID)
	return nil
}

// Latest implements core.CheckpointStore; the head is the most recently
// appended checkpoint.
func (s *InMemoryStore) Latest(_ context.Context, threadID string) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.threads[threadID]
	if !ok || len(c.order) == 0 {
		return nil, nil
	}
	cp := cloneCheckpoint(c.byID[c.order[len(c.order)-1]])
	return &cp, nil
}

// Get implements core.CheckpointStore.
func (s *InMemoryStore) Get(_ context.Context, threadID, checkpointID string) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.threads[threadID]
	if !ok {
		return nil, core.ErrCheckpointNotFound
	}
	cp, ok := c.byID[checkpointID]
	if !ok {
		return nil, core.ErrCheckpointNotFound
	}
	clone := cloneCheckpoint(cp)
	return &clone, nil
}

// Prune implements core.CheckpointStore. A thread is deleted only when its
// newest checkpoint is older than the cutoff; any recent checkpoint keeps
// the whole chain.
func (s *InMemoryStore) Prune(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for threadID, c := range s.threads {
		if len(c.order) == 0 {
			delete(s.threads, threadID)
			continue
		}
		newest := c.byID[c.order[len(c.order)-1]]
		if newest.CreatedAt.Before(cutoff) {
			deleted += len(c.order)
			delete(s.threads, threadID)
		}
	}
	return deleted, nil
}

func cloneCheckpoint(cp core.Checkpoint) core.Checkpoint {
	clone := cp
	clone.StateBlob = make([]byte, len(cp.StateBlob))
	copy(clone.StateBlob, cp.StateBlob)
	if cp.ParentCheckpointID != nil {
		parent := *cp.ParentCheckpointID
		clone.ParentCheckpointID = &parent
	}
	return clone
}
