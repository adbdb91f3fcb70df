package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is normal operation: calls pass through.
	StateClosed State = iota
	// StateOpen means too many consecutive failures: calls are rejected.
	StateOpen
	// StateHalfOpen is recovery probing: exactly one trial call is allowed.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config configures circuit breaker behavior.
type Config struct {
	// FailureThreshold is the number of consecutive failures in the closed
	// state before the circuit opens. Default: 5.
	FailureThreshold uint

	// RecoveryTimeout is how long the circuit stays open before a single
	// half-open probe is allowed. Default: 60s.
	RecoveryTimeout time.Duration
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second}
}

// Stats is a point-in-time snapshot of breaker state for health surfaces.
type Stats struct {
	Dependency          string    `json:"dependency"`
	State               string    `json:"state"`
	ConsecutiveFailures uint      `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at"`
	TotalCalls          int64     `json:"total_calls"`
	TotalRejections     int64     `json:"total_rejections"`
}

// CircuitBreaker tracks consecutive failures of one external dependency and
// fails fast while the dependency is known-bad.
//
// States and transitions:
//
//   - Closed: calls execute; each failure increments the consecutive failure
//     count; at FailureThreshold the circuit opens.
//   - Open: calls are rejected with core.ErrCircuitOpen until RecoveryTimeout
//     has elapsed since the last failure, then one half-open probe is let
//     through.
//   - Half-open: exactly one concurrent trial; success closes the circuit and
//     resets the failure count, failure reopens it and restarts the timeout.
//
// Thread safety: safe for concurrent use. All state transitions happen under
// a single mutex so multiple turns across multiple goroutines may share one
// breaker per dependency.
type CircuitBreaker struct {
	name   string
	config Config

	mu             sync.Mutex
	state          State
	failures       uint
	lastFailureAt  time.Time
	halfOpenActive int

	totalCalls      int64
	totalRejections int64

	logger logging.Logger
	sink   core.EventSink

	// now is swapped in tests to drive the recovery timeout.
	now func() time.Time
}

// BreakerOptions holds optional collaborators for a breaker.
type BreakerOptions struct {
	// Config overrides the default thresholds.
	Config Config
	// Logger receives transition logs. Defaults to NoOpLogger.
	Logger logging.Logger
	// Sink receives BreakerTransition events. Defaults to NoopSink.
	Sink core.EventSink
}

// NewCircuitBreaker creates a breaker for the named dependency.
func NewCircuitBreaker(name string, optFns ...func(o *BreakerOptions)) *CircuitBreaker {
	opts := BreakerOptions{
		Config: DefaultConfig(),
		Logger: logging.NoOpLogger{},
		Sink:   core.NoopSink{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &CircuitBreaker{
		name:   name,
		config: opts.Config,
		state:  StateClosed,
		logger: opts.Logger,
		sink:   opts.Sink,
		now:    time.Now,
	}
}

// Name returns the protected dependency name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Allow checks whether a call may proceed. The returned release function, if
// non-nil, must be invoked when the call completes (half-open probe slot).
func (cb *CircuitBreaker) Allow() (bool, func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	switch cb.state {
	case StateClosed:
		return true, nil

	case StateOpen:
		// Elapsed recovery timeout is the only gate to half-open.
		if cb.now().Sub(cb.lastFailureAt) >= cb.config.RecoveryTimeout {
			cb.transitionTo(StateHalfOpen)
			return cb.tryHalfOpen()
		}
		cb.totalRejections++
		return false, nil

	case StateHalfOpen:
		return cb.tryHalfOpen()
	}

	return false, nil
}

// tryHalfOpen admits at most one concurrent probe. Caller must hold the lock.
func (cb *CircuitBreaker) tryHalfOpen() (bool, func()) {
	if cb.halfOpenActive >= 1 {
		cb.totalRejections++
		return false, nil
	}
	cb.halfOpenActive++
	return true, func() {
		cb.mu.Lock()
		if cb.halfOpenActive > 0 {
			cb.halfOpenActive--
		}
		cb.mu.Unlock()
	}
}

// RecordSuccess records a successful call, resetting the failure count in
// the closed state and closing the circuit after a successful probe.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.transitionTo(StateClosed)
	}
}

// RecordFailure records a failed call, opening the circuit at the threshold
// or reopening it after a failed probe.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureAt = cb.now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
	}
}

// transitionTo changes state. Caller must hold the lock. Failure counts are
// reset only when the circuit fully closes.
func (cb *CircuitBreaker) transitionTo(newState State) {
	from := cb.state
	cb.state = newState
	cb.halfOpenActive = 0
	if newState == StateClosed {
		cb.failures = 0
	}
	cb.logger.Debug("circuit breaker transition dependency=%s from=%s to=%s", cb.name, from, newState)
	cb.sink.Emit(core.BreakerTransition{
		Dependency: cb.name,
		From:       from.String(),
		To:         newState.String(),
		Failures:   cb.failures,
	})
}

// Execute wraps fn with breaker protection. It returns core.ErrCircuitOpen
// (wrapped with the dependency name) when the call is rejected, or the error
// from fn otherwise.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	allowed, release := cb.Allow()
	if !allowed {
		return fmt.Errorf("%s: %w", cb.name, core.ErrCircuitOpen)
	}
	if release != nil {
		defer release()
	}

	if err := fn(ctx); err != nil {
		cb.RecordFailure()
		return err
	}

	cb.RecordSuccess()
	return nil
}

// Snapshot returns current breaker statistics.
func (cb *CircuitBreaker) Snapshot() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Dependency:          cb.name,
		State:               cb.state.String(),
		ConsecutiveFailures: cb.failures,
		LastFailureAt:       cb.lastFailureAt,
		TotalCalls:          cb.totalCalls,
		TotalRejections:     cb.totalRejections,
	}
}

// Reset forces the breaker back to the closed state. Intended for operator
// tooling and tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.halfOpenActive = 0
}
