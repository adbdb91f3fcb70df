package core

import "context"

// Generator is the external language-model collaborator. Implementations
// must honor context cancellation.
type Generator interface {
	// Generate produces a reply for the merged context and message history.
	Generate(ctx context.Context, instructions string, messages []Message) (string, error)

	// Classify decides whether text contains durable information worth
	// remembering, and if so of which kind. The boolean reports whether the
	// text should be stored at all.
	Classify(ctx context.Context, text string) (MemoryKind, bool, error)
}

// Transcriber converts spoken audio to text. The payload is opaque to the
// core; callers wrap implementations with their own circuit breaker.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer converts reply text to spoken audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Embedder maps text to a fixed-dimension vector. Implementations must be
// deterministic for a fixed model version; the dimension is fixed at store
// creation time and must not change without a full re-index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
