package orchestrator

import (
	"fmt"
	"sync"
)

// TurnLimiter caps the number of concurrently running turns across all
// threads. A limiter with max == 0 admits everything.
type TurnLimiter struct {
	max    int
	active int
	total  uint64
	mu     sync.Mutex
}

// NewTurnLimiter creates a limiter admitting up to max concurrent turns.
func NewTurnLimiter(max int) *TurnLimiter {
	return &TurnLimiter{max: max}
}

// Acquire reserves a turn slot. It returns an error when the limiter is at
// capacity; callers reject the turn rather than queue it.
func (tl *TurnLimiter) Acquire() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max > 0 && tl.active >= tl.max {
		return fmt.Errorf("turn capacity exceeded: %d concurrent turns", tl.max)
	}
	tl.active++
	tl.total++
	return nil
}

// Release frees a slot reserved by Acquire.
func (tl *TurnLimiter) Release() {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.active > 0 {
		tl.active--
	}
}

// Active returns the number of turns currently holding a slot.
func (tl *TurnLimiter) Active() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.active
}

// Total returns how many turns have been admitted since construction.
func (tl *TurnLimiter) Total() uint64 {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.total
}
