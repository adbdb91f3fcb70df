package core

import (
	"context"
	"time"
)

// Checkpoint is an immutable snapshot of conversation state taken at a turn
// boundary. Checkpoints for a thread form a singly-linked chain via
// ParentCheckpointID; resuming from an older checkpoint starts a historical
// branch, but the store always reports exactly one head (the most recently
// appended checkpoint) per thread.
type Checkpoint struct {
	ThreadID           string    `json:"thread_id"`
	CheckpointID       string    `json:"checkpoint_id"`
	ParentCheckpointID *string   `json:"parent_checkpoint_id,omitempty"`
	StateBlob          []byte    `json:"state_blob"`
	CreatedAt          time.Time `json:"created_at"`
}

// CheckpointStore persists checkpoint chains. Implementations must serialize
// writes per thread (single writer per thread); distinct threads may write in
// parallel. Lineage validation is performed by checkpoint.Log before Append
// is called, so stores may assume parents are well-formed.
type CheckpointStore interface {
	// Append persists a new checkpoint.
	Append(ctx context.Context, cp Checkpoint) error

	// Latest returns the most recently appended checkpoint for a thread, or
	// nil when the thread has no checkpoints.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Get fetches a checkpoint by id within a thread. Returns
	// ErrCheckpointNotFound when absent.
	Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// Prune deletes the checkpoints of every thread whose entire chain is
	// older than the cutoff. A thread with any recent checkpoint is left
	// untouched. Returns the number of checkpoints deleted.
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}
