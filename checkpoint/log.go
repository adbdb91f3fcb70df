package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// Log is the conversation log: it validates checkpoint lineage before
// handing writes to the underlying store. Appends with a parent that does
// not belong to the thread fail fast with a core.LineageError and leave the
// chain untouched; they are never retried.
//
// Writes for a given thread must be serialized by the caller (the
// orchestrator holds a per-thread lock for the whole turn); concurrent
// threads are independent and may write in parallel.
type Log struct {
	store  core.CheckpointStore
	logger logging.Logger
}

// LogOptions holds optional collaborators for a Log.
type LogOptions struct {
	// Logger receives append/prune logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// NewLog creates a conversation log over the given store.
func NewLog(store core.CheckpointStore, optFns ...func(o *LogOptions)) *Log {
	opts := LogOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Log{store: store, logger: opts.Logger}
}

// Append creates and persists a new checkpoint for the thread. A nil parent
// starts a new chain. A non-nil parent must reference an existing checkpoint
// of the same thread, otherwise a core.LineageError is returned.
func (l *Log) Append(ctx context.Context, threadID string, parentID *string, stateBlob []byte) (*core.Checkpoint, error) {
	if threadID == "" {
		return nil, &core.ValidationError{Field: "thread_id", Reason: "must not be empty"}
	}

	if parentID != nil {
		if _, err := l.store.Get(ctx, threadID, *parentID); err != nil {
			if errors.Is(err, core.ErrCheckpointNotFound) {
				return nil, &core.LineageError{
					ThreadID: threadID,
					ParentID: *parentID,
					Reason:   "parent checkpoint does not belong to thread",
				}
			}
			return nil, fmt.Errorf("resolve parent checkpoint: %w", err)
		}
	}

	blob := make([]byte, len(stateBlob))
	copy(blob, stateBlob)

	cp := core.Checkpoint{
		ThreadID:           threadID,
		CheckpointID:       core.NewID(),
		ParentCheckpointID: parentID,
		StateBlob:          blob,
		CreatedAt:          time.Now().UTC(),
	}
	if err := l.store.Append(ctx, cp); err != nil {
		return nil, fmt.Errorf("append checkpoint: %w", err)
	}

	l.logger.Debug("checkpoint appended thread=%s id=%s", threadID, cp.CheckpointID)
	return &cp, nil
}

// Latest returns the head checkpoint of a thread, or nil for a fresh thread.
func (l *Log) Latest(ctx context.Context, threadID string) (*core.Checkpoint, error) {
	return l.store.Latest(ctx, threadID)
}

// Get fetches a specific checkpoint, enabling resumption from an older point
// in the chain (which starts a historical branch on the next append).
func (l *Log) Get(ctx context.Context, threadID, checkpointID string) (*core.Checkpoint, error) {
	return l.store.Get(ctx, threadID, checkpointID)
}

// Prune deletes the chains of threads whose entire history is older than the
// cutoff. Intended as an out-of-band maintenance operation, not for the
// request path.
func (l *Log) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	n, err := l.store.Prune(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	if n > 0 {
		l.logger.Info("pruned %d checkpoints older than %s", n, olderThan)
	}
	return n, nil
}
