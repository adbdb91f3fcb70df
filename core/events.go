package core

import (
	"time"

	"github.com/parleyhq/parley/logging"
)

// Event is a structured observability record emitted by the core. The
// surrounding system may log, aggregate or export these; the core itself
// never blocks on a sink.
type Event interface {
	// EventName returns a stable identifier for the event type.
	EventName() string
}

// EventSink receives emitted events. Implementations must be safe for
// concurrent use and should return quickly.
type EventSink interface {
	Emit(ev Event)
}

// BreakerTransition is emitted whenever a circuit breaker changes state.
type BreakerTransition struct {
	Dependency string
	From       string
	To         string
	Failures   uint
}

// EventName implements Event.
func (BreakerTransition) EventName() string { return "breaker_transition" }

// RetryAttempt is emitted before each backoff sleep of the retry executor.
type RetryAttempt struct {
	Dependency string
	Attempt    int
	Backoff    time.Duration
	Cause      string
}

// EventName implements Event.
func (RetryAttempt) EventName() string { return "retry_attempt" }

// MemoryDecision is emitted for every store attempt against the semantic
// store, including skips.
type MemoryDecision struct {
	SessionID  string
	Outcome    string
	RecordID   string
	Similarity float64
}

// EventName implements Event.
func (MemoryDecision) EventName() string { return "memory_decision" }

// SummarizeTriggered is emitted when the orchestrator compresses history.
type SummarizeTriggered struct {
	ThreadID  string
	TurnCount uint
	Replaced  int
}

// EventName implements Event.
func (SummarizeTriggered) EventName() string { return "summarize_triggered" }

// TurnStarted is emitted when the orchestrator begins a turn.
type TurnStarted struct {
	ThreadID string
	Workflow string
}

// EventName implements Event.
func (TurnStarted) EventName() string { return "turn_started" }

// TurnFinished is emitted when a turn reaches END, degraded or not.
type TurnFinished struct {
	ThreadID string
	Duration time.Duration
	Degraded bool
}

// EventName implements Event.
func (TurnFinished) EventName() string { return "turn_finished" }

// NoopSink discards all events. Useful default when observability is wired
// elsewhere.
type NoopSink struct{}

// Emit implements EventSink.
func (NoopSink) Emit(Event) {}

// LogSink forwards every event to a structured logger at info level.
type LogSink struct {
	Logger logging.Logger
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(logger logging.Logger) *LogSink { return &LogSink{Logger: logger} }

// Emit implements EventSink.
func (s *LogSink) Emit(ev Event) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info("event name=%s detail=%+v", ev.EventName(), ev)
}
