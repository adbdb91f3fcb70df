package speech

import (
	"context"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/resilience"
)

// ResilientTranscriber runs a transcriber through a dedicated breaker and
// retry loop. Payloads are opaque bytes.
type ResilientTranscriber struct {
	inner    core.Transcriber
	executor *resilience.Executor
}

// NewResilientTranscriber wraps inner with executor. A nil executor gets a
// fresh one over a "transcription" breaker.
func NewResilientTranscriber(inner core.Transcriber, executor *resilience.Executor) *ResilientTranscriber {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.NewCircuitBreaker("transcription"))
	}
	return &ResilientTranscriber{inner: inner, executor: executor}
}

// Transcribe implements core.Transcriber.
func (t *ResilientTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", &core.ValidationError{Field: "audio", Reason: "must not be empty"}
	}
	var text string
	err := t.executor.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		text, innerErr = t.inner.Transcribe(ctx, audio)
		if innerErr != nil {
			return core.Transient("transcribe", innerErr)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// ResilientSynthesizer runs a synthesizer through a dedicated breaker and
// retry loop.
type ResilientSynthesizer struct {
	inner    core.Synthesizer
	executor *resilience.Executor
}

// NewResilientSynthesizer wraps inner with executor. A nil executor gets a
// fresh one over a "synthesis" breaker.
func NewResilientSynthesizer(inner core.Synthesizer, executor *resilience.Executor) *ResilientSynthesizer {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.NewCircuitBreaker("synthesis"))
	}
	return &ResilientSynthesizer{inner: inner, executor: executor}
}

// Synthesize implements core.Synthesizer.
func (s *ResilientSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, &core.ValidationError{Field: "text", Reason: "must not be empty"}
	}
	var audio []byte
	err := s.executor.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		audio, innerErr = s.inner.Synthesize(ctx, text)
		if innerErr != nil {
			return core.Transient("synthesize", innerErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}
