// Package parley provides a high-level façade over the resilient,
// memory-augmented conversation core. Most applications interact with this
// package by:
//  1. Creating a Parley via New() with a generation collaborator
//     (optionally overriding the default in-memory stores)
//  2. Running turns with Chat() / Speak() or the lower-level Run()
//  3. Inspecting breaker health via Breakers() and shutting down with
//     Shutdown() so in-flight memory writes drain
//
// The façade delegates the turn state machine to orchestrator.Orchestrator
// while keeping setup ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a Redis
// checkpoint store, a chromem vector index, a real embedder and a structured
// logger.
package parley

import (
	"context"
	"time"

	"github.com/parleyhq/parley/checkpoint"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/orchestrator"
	"github.com/parleyhq/parley/resilience"
	"github.com/parleyhq/parley/speech"
)

// Options configures the Parley instance.
type Options struct {
	// CheckpointStore persists conversation chains. Defaults to an
	// in-memory store.
	CheckpointStore core.CheckpointStore
	// VectorIndex backs long-term memory. Defaults to an in-memory index.
	VectorIndex core.VectorIndex
	// Embedder maps text to vectors. Defaults to a deterministic mock,
	// which is fine for local runs but not for real semantic recall.
	Embedder core.Embedder

	// Transcriber / Synthesizer enable the audio branch. Each is wrapped
	// with its own circuit breaker.
	Transcriber core.Transcriber
	Synthesizer core.Synthesizer

	// BreakerConfig applies to every dependency breaker.
	BreakerConfig resilience.Config
	// RetryConfig applies to every retry executor.
	RetryConfig resilience.RetryConfig

	// Persona is the system context prepended to every generation.
	Persona string
	// FallbackText overrides the degraded reply.
	FallbackText string
	// SummarizeEvery compresses history every N turns. Zero disables.
	SummarizeEvery uint
	// TurnTimeout bounds one turn end to end.
	TurnTimeout time.Duration
	// MaxConcurrentTurns caps in-flight turns. Zero means unlimited.
	MaxConcurrentTurns int
	// DuplicateThreshold is the cosine similarity above which a new memory
	// is skipped as redundant.
	DuplicateThreshold float64

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
	// Sink receives structured events (defaults to a no-op sink)
	Sink core.EventSink
}

// Parley is the high-level façade aggregating the orchestrator and its
// stores.
type Parley struct {
	opts         Options
	registry     *resilience.Registry
	log          *checkpoint.Log
	store        *memory.SemanticStore
	coordinator  *memory.Coordinator
	orchestrator *orchestrator.Orchestrator
}

// New creates a Parley instance around a generation collaborator. Any unset
// store is initialized with an in-memory implementation.
func New(generator core.Generator, optFns ...func(o *Options)) *Parley {
	opts := Options{
		CheckpointStore:    checkpoint.NewInMemoryStore(),
		VectorIndex:        memory.NewInMemoryIndex(),
		Embedder:           memory.NewMockEmbedder(0),
		BreakerConfig:      resilience.DefaultConfig(),
		RetryConfig:        resilience.DefaultRetryConfig(),
		FallbackText:       orchestrator.DefaultFallbackText,
		SummarizeEvery:     orchestrator.DefaultSummarizeEvery,
		TurnTimeout:        orchestrator.DefaultTurnTimeout,
		DuplicateThreshold: memory.DefaultDuplicateThreshold,
		Logger:             logging.NoOpLogger{},
		Sink:               core.NoopSink{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := resilience.NewRegistry(func(o *resilience.RegistryOptions) {
		o.Defaults = opts.BreakerConfig
		o.Logger = opts.Logger
		o.Sink = opts.Sink
	})
	executor := func(dependency string) *resilience.Executor {
		return resilience.NewExecutor(registry.Get(dependency), func(o *resilience.ExecutorOptions) {
			o.Config = opts.RetryConfig
			o.Logger = opts.Logger
			o.Sink = opts.Sink
		})
	}

	store := memory.NewSemanticStore(opts.VectorIndex, opts.Embedder, func(o *memory.StoreOptions) {
		o.DuplicateThreshold = opts.DuplicateThreshold
		o.Executor = executor("semantic-store")
		o.Logger = opts.Logger
		o.Sink = opts.Sink
	})
	coordinator := memory.NewCoordinator(store, generator, func(o *memory.CoordinatorOptions) {
		o.Logger = opts.Logger
	})
	log := checkpoint.NewLog(opts.CheckpointStore, func(o *checkpoint.LogOptions) {
		o.Logger = opts.Logger
	})

	var transcriber core.Transcriber
	if opts.Transcriber != nil {
		transcriber = speech.NewResilientTranscriber(opts.Transcriber, executor("transcription"))
	}
	var synthesizer core.Synthesizer
	if opts.Synthesizer != nil {
		synthesizer = speech.NewResilientSynthesizer(opts.Synthesizer, executor("synthesis"))
	}

	orch := orchestrator.New(log, coordinator, generator, func(o *orchestrator.Options) {
		o.Transcriber = transcriber
		o.Synthesizer = synthesizer
		o.GenerationExecutor = executor("generation")
		o.Persona = opts.Persona
		o.FallbackText = opts.FallbackText
		o.SummarizeEvery = opts.SummarizeEvery
		o.TurnTimeout = opts.TurnTimeout
		o.MaxConcurrentTurns = opts.MaxConcurrentTurns
		o.Logger = opts.Logger
		o.Sink = opts.Sink
	})

	return &Parley{
		opts:         opts,
		registry:     registry,
		log:          log,
		store:        store,
		coordinator:  coordinator,
		orchestrator: orch,
	}
}

// Chat runs one text turn.
func (p *Parley) Chat(ctx context.Context, threadID, sessionID, text string) (*orchestrator.TurnResult, error) {
	return p.orchestrator.Run(ctx, orchestrator.TurnInput{ThreadID: threadID, SessionID: sessionID, Text: text})
}

// Speak runs one audio turn.
func (p *Parley) Speak(ctx context.Context, threadID, sessionID string, audio []byte) (*orchestrator.TurnResult, error) {
	return p.orchestrator.Run(ctx, orchestrator.TurnInput{ThreadID: threadID, SessionID: sessionID, Audio: audio})
}

// Run executes a fully specified turn, including historical resumption.
func (p *Parley) Run(ctx context.Context, input orchestrator.TurnInput) (*orchestrator.TurnResult, error) {
	return p.orchestrator.Run(ctx, input)
}

// Memory exposes the memory coordinator for direct recall or flushing.
func (p *Parley) Memory() *memory.Coordinator { return p.coordinator }

// MemoryHealth probes the semantic store.
func (p *Parley) MemoryHealth(ctx context.Context) memory.Health {
	return p.store.Health(ctx)
}

// Checkpoints exposes the conversation log for resumption and pruning.
func (p *Parley) Checkpoints() *checkpoint.Log { return p.log }

// Breakers returns a snapshot of every dependency breaker.
func (p *Parley) Breakers() []resilience.Stats { return p.registry.Snapshots() }

// Shutdown drains in-flight memory writes up to the context deadline.
func (p *Parley) Shutdown(ctx context.Context) error {
	return p.coordinator.Shutdown(ctx)
}
