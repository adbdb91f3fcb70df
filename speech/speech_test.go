package speech

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/resilience"
)

func fastExecutor(dependency string, threshold uint) *resilience.Executor {
	return resilience.NewExecutor(
		resilience.NewCircuitBreaker(dependency, func(o *resilience.BreakerOptions) {
			o.Config.FailureThreshold = threshold
		}),
		func(o *resilience.ExecutorOptions) {
			o.Config = resilience.RetryConfig{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
		},
	)
}

func TestResilientTranscriber_PassesThrough(t *testing.T) {
	inner := NewMockTranscriber()
	inner.AddTranscript([]byte{0x01}, "hello")
	rt := NewResilientTranscriber(inner, fastExecutor("transcription", 5))

	text, err := rt.Transcribe(context.Background(), []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestResilientTranscriber_RejectsEmptyAudio(t *testing.T) {
	rt := NewResilientTranscriber(NewMockTranscriber(), nil)

	var ve *core.ValidationError
	_, err := rt.Transcribe(context.Background(), nil)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "audio", ve.Field)
}

func TestResilientTranscriber_OpensBreakerOnRepeatedFailure(t *testing.T) {
	inner := NewMockTranscriber()
	inner.FailNext(100)
	rt := NewResilientTranscriber(inner, fastExecutor("transcription", 3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rt.Transcribe(ctx, []byte{0x01})
		require.Error(t, err)
	}
	calls := inner.Calls()

	_, err := rt.Transcribe(ctx, []byte{0x01})
	require.ErrorIs(t, err, core.ErrCircuitOpen)
	assert.Equal(t, calls, inner.Calls(), "open breaker rejects without invoking")
}

func TestResilientSynthesizer_PassesThrough(t *testing.T) {
	rs := NewResilientSynthesizer(NewMockSynthesizer(), fastExecutor("synthesis", 5))

	audio, err := rs.Synthesize(context.Background(), "say hi")
	require.NoError(t, err)
	assert.Equal(t, []byte("say hi"), audio)
}

func TestResilientSynthesizer_RejectsEmptyText(t *testing.T) {
	rs := NewResilientSynthesizer(NewMockSynthesizer(), nil)

	var ve *core.ValidationError
	_, err := rs.Synthesize(context.Background(), "")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "text", ve.Field)
}

func TestResilientSynthesizer_WrapsFailuresAsTransient(t *testing.T) {
	inner := NewMockSynthesizer()
	inner.FailNext(1)
	rs := NewResilientSynthesizer(inner, fastExecutor("synthesis", 5))

	_, err := rs.Synthesize(context.Background(), "say hi")
	var te *core.TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "synthesize", te.Op)
}
