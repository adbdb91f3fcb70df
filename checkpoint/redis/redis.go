// Package redis provides a core.CheckpointStore backed by Redis. Each thread
// keeps its chain in an append-only list, so the head is always the last
// element; a set of thread keys supports out-of-band pruning.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

const threadSetKey = "parley:checkpoint:threads"

// Store persists checkpoint chains in Redis lists.
type Store struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger logging.Logger
}

// StoreOptions holds optional overrides for a redis Store.
type StoreOptions struct {
	// TTL, when positive, is refreshed on every append so abandoned threads
	// expire even without pruning.
	TTL time.Duration
	// Logger receives store logs. Defaults to NoOpLogger.
	Logger logging.Logger
}

// NewStore creates a checkpoint store over an existing Redis client.
func NewStore(rdb redis.Cmdable, optFns ...func(o *StoreOptions)) *Store {
	opts := StoreOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{rdb: rdb, ttl: opts.TTL, logger: opts.Logger}
}

func chainKey(threadID string) string {
	return fmt.Sprintf("parley:checkpoint:%s:chain", threadID)
}

// Append implements core.CheckpointStore.
func (s *Store) Append(ctx context.Context, cp core.Checkpoint) error {
	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	key := chainKey(cp.ThreadID)

	if err := s.rdb.RPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("push checkpoint: %w", err)
	}
	if err := s.rdb.SAdd(ctx, threadSetKey, cp.ThreadID).Err(); err != nil {
		return fmt.Errorf("register thread: %w", err)
	}
	// extend TTL on touch
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			s.logger.Warn("failed to set TTL on checkpoint chain key=%s err=%v", key, err)
		}
	}
	return nil
}

// Latest implements core.CheckpointStore.
func (s *Store) Latest(ctx context.Context, threadID string) (*core.Checkpoint, error) {
	rows, err := s.rdb.LRange(ctx, chainKey(threadID), -1, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest checkpoint: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var cp core.Checkpoint
	if err := json.Unmarshal([]byte(rows[0]), &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Get implements core.CheckpointStore. Chains are short (they are pruned and
// summarized), so a linear scan of the thread's list is acceptable.
func (s *Store) Get(ctx context.Context, threadID, checkpointID string) (*core.Checkpoint, error) {
	rows, err := s.rdb.LRange(ctx, chainKey(threadID), 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, core.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("load checkpoint chain: %w", err)
	}
	for i, row := range rows {
		var cp core.Checkpoint
		if err := json.Unmarshal([]byte(row), &cp); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint at index %d: %w", i, err)
		}
		if cp.CheckpointID == checkpointID {
			return &cp, nil
		}
	}
	return nil, core.ErrCheckpointNotFound
}

// Prune implements core.CheckpointStore.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	threads, err := s.rdb.SMembers(ctx, threadSetKey).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("list threads: %w", err)
	}

	deleted := 0
	for _, threadID := range threads {
		key := chainKey(threadID)
		head, err := s.Latest(ctx, threadID)
		if err != nil {
			return deleted, err
		}
		if head == nil {
			// Chain already expired via TTL; drop the registration.
			if err := s.rdb.SRem(ctx, threadSetKey, threadID).Err(); err != nil {
				return deleted, fmt.Errorf("unregister thread: %w", err)
			}
			continue
		}
		if !head.CreatedAt.Before(cutoff) {
			continue
		}
		n, err := s.rdb.LLen(ctx, key).Result()
		if err != nil {
			return deleted, fmt.Errorf("measure chain: %w", err)
		}
		if err := s.rdb.Del(ctx, key).Err(); err != nil {
			return deleted, fmt.Errorf("delete chain: %w", err)
		}
		if err := s.rdb.SRem(ctx, threadSetKey, threadID).Err(); err != nil {
			return deleted, fmt.Errorf("unregister thread: %w", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}
