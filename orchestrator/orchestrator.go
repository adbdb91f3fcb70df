package orchestrator

import (
	"sync"
	"time"

	"github.com/parleyhq/parley/checkpoint"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/resilience"
)

const (
	// DefaultSummarizeEvery compresses history every N turns.
	DefaultSummarizeEvery uint = 20
	// DefaultSummaryKeep is how many recent messages survive a compression.
	DefaultSummaryKeep = 6
	// DefaultTurnTimeout bounds one whole turn.
	DefaultTurnTimeout = 60 * time.Second
	// DefaultFallbackText is the degraded reply returned when generation
	// fails after retries.
	DefaultFallbackText = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

// Options configures an Orchestrator.
type Options struct {
	// Transcriber handles the audio branch. Optional; audio turns fail
	// validation without one.
	Transcriber core.Transcriber
	// Synthesizer voices replies to audio turns. Optional.
	Synthesizer core.Synthesizer
	// GenerationExecutor wraps every generation call with its breaker and
	// retry loop. Defaults to a fresh executor over a "generation" breaker.
	GenerationExecutor *resilience.Executor
	// Persona is the system context merged ahead of recalled memories.
	Persona string
	// FallbackText overrides the degraded reply.
	FallbackText string
	// SummarizeEvery triggers history compression when turn_count is a
	// multiple of it. Zero disables summarization.
	SummarizeEvery uint
	// SummaryKeep is how many recent messages a compression preserves.
	SummaryKeep int
	// TurnTimeout bounds one turn end to end.
	TurnTimeout time.Duration
	// MaxConcurrentTurns caps in-flight turns across threads. Zero means
	// unlimited.
	MaxConcurrentTurns int
	// Logger receives turn logs. Defaults to NoOpLogger.
	Logger logging.Logger
	// Sink receives turn and summarization events. Defaults to NoopSink.
	Sink core.EventSink
}

// Orchestrator composes the checkpoint log, the memory coordinator and the
// external collaborators into the turn state machine. It is safe for
// concurrent use.
type Orchestrator struct {
	log       *checkpoint.Log
	memory    *memory.Coordinator
	generator core.Generator
	genExec   *resilience.Executor

	transcriber core.Transcriber
	synthesizer core.Synthesizer

	persona        string
	fallbackText   string
	summarizeEvery uint
	summaryKeep    int
	turnTimeout    time.Duration

	limiter *TurnLimiter
	logger  logging.Logger
	sink    core.EventSink

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// New creates an orchestrator over a checkpoint log, a memory coordinator
// and a generation collaborator.
func New(log *checkpoint.Log, mem *memory.Coordinator, generator core.Generator, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		FallbackText:   DefaultFallbackText,
		SummarizeEvery: DefaultSummarizeEvery,
		SummaryKeep:    DefaultSummaryKeep,
		TurnTimeout:    DefaultTurnTimeout,
		Logger:         logging.NoOpLogger{},
		Sink:           core.NoopSink{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.GenerationExecutor == nil {
		opts.GenerationExecutor = resilience.NewExecutor(
			resilience.NewCircuitBreaker("generation", func(o *resilience.BreakerOptions) {
				o.Logger = opts.Logger
				o.Sink = opts.Sink
			}),
			func(o *resilience.ExecutorOptions) {
				o.Logger = opts.Logger
				o.Sink = opts.Sink
			},
		)
	}
	if opts.SummaryKeep <= 0 {
		opts.SummaryKeep = DefaultSummaryKeep
	}
	return &Orchestrator{
		log:            log,
		memory:         mem,
		generator:      generator,
		genExec:        opts.GenerationExecutor,
		transcriber:    opts.Transcriber,
		synthesizer:    opts.Synthesizer,
		persona:        opts.Persona,
		fallbackText:   opts.FallbackText,
		summarizeEvery: opts.SummarizeEvery,
		summaryKeep:    opts.SummaryKeep,
		turnTimeout:    opts.TurnTimeout,
		limiter:        NewTurnLimiter(opts.MaxConcurrentTurns),
		logger:         opts.Logger,
		sink:           opts.Sink,
		threads:        make(map[string]*sync.Mutex),
	}
}

// lockThread serializes turns for one thread. Distinct threads proceed in
// parallel.
func (o *Orchestrator) lockThread(threadID string) func() {
	o.mu.Lock()
	tm, ok := o.threads[threadID]
	if !ok {
		tm = &sync.Mutex{}
		o.threads[threadID] = tm
	}
	o.mu.Unlock()

	tm.Lock()
	return tm.Unlock
}

// Limiter exposes the concurrency limiter, mostly for health reporting.
func (o *Orchestrator) Limiter() *TurnLimiter { return o.limiter }
