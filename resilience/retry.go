package resilience

import (
	"context"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
)

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3.
	MaxRetries int
	// InitialBackoff is the sleep before the first retry. Default: 1s.
	InitialBackoff time.Duration
	// MaxBackoff caps the doubled backoff. Default: 10s.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second}
}

// Backoff returns the sleep before retry number attempt (0-based):
// min(initial * 2^attempt, max).
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Executor wraps calls to one dependency with its circuit breaker and a
// bounded exponential backoff retry loop. Every attempt goes through the
// breaker first: a circuit-open rejection or a classified non-retryable
// error (validation, lineage, cancellation) fails immediately without
// retrying. Inter-attempt sleeps are cooperative (timer + select) so they
// suspend only the calling goroutine.
type Executor struct {
	breaker *CircuitBreaker
	config  RetryConfig
	logger  logging.Logger
	sink    core.EventSink

	// sleep is swapped in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// ExecutorOptions holds optional overrides for an Executor.
type ExecutorOptions struct {
	// Config overrides the default retry bounds.
	Config RetryConfig
	// Logger receives retry logs. Defaults to NoOpLogger.
	Logger logging.Logger
	// Sink receives RetryAttempt events. Defaults to NoopSink.
	Sink core.EventSink
}

// NewExecutor creates an executor bound to the given breaker.
func NewExecutor(breaker *CircuitBreaker, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		Config: DefaultRetryConfig(),
		Logger: logging.NoOpLogger{},
		Sink:   core.NoopSink{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		breaker: breaker,
		config:  opts.Config,
		logger:  opts.Logger,
		sink:    opts.Sink,
		sleep:   sleepCtx,
	}
}

// Breaker returns the circuit breaker this executor consults.
func (e *Executor) Breaker() *CircuitBreaker { return e.breaker }

// Execute runs op through the breaker, retrying transient failures with
// capped exponential backoff. After MaxRetries are exhausted the last error
// is returned.
func (e *Executor) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := e.breaker.Execute(ctx, op)
		if err == nil {
			return nil
		}
		if !core.IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt >= e.config.MaxRetries {
			break
		}

		backoff := Backoff(attempt, e.config.InitialBackoff, e.config.MaxBackoff)
		e.logger.Warn("retrying %s after failure attempt=%d backoff=%s err=%v", e.breaker.Name(), attempt, backoff, err)
		e.sink.Emit(core.RetryAttempt{
			Dependency: e.breaker.Name(),
			Attempt:    attempt,
			Backoff:    backoff,
			Cause:      err.Error(),
		})
		if serr := e.sleep(ctx, backoff); serr != nil {
			return serr
		}
	}
	return lastErr
}

// sleepCtx suspends the current goroutine for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
