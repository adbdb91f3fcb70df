package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/checkpoint"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/internal/testutil"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/resilience"
	"github.com/parleyhq/parley/speech"
)

// scriptedGenerator is a core.Generator that records the instructions it was
// called with, so tests can assert on the merged context.
type scriptedGenerator struct {
	mu              sync.Mutex
	replies         map[string]string
	classifications map[string]core.MemoryKind
	instructions    []string
	failures        int
	block           chan struct{}
	entered         chan struct{}
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		replies:         map[string]string{},
		classifications: map[string]core.MemoryKind{},
	}
}

func (g *scriptedGenerator) Generate(ctx context.Context, instructions string, messages []core.Message) (string, error) {
	g.mu.Lock()
	g.instructions = append(g.instructions, instructions)
	entered := g.entered
	block := g.block
	fail := g.failures > 0
	if fail {
		g.failures--
	}
	g.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", core.Transient("scripted generate", fmt.Errorf("scripted failure"))
	}

	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			last = messages[i].Text
			break
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if reply, ok := g.replies[last]; ok {
		return reply, nil
	}
	return "reply to: " + last, nil
}

func (g *scriptedGenerator) Classify(_ context.Context, text string) (core.MemoryKind, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if kind, ok := g.classifications[text]; ok {
		return kind, true, nil
	}
	return "", false, nil
}

func (g *scriptedGenerator) lastInstructions() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.instructions) == 0 {
		return ""
	}
	return g.instructions[len(g.instructions)-1]
}

// fastGenExecutor avoids real backoff sleeps in failure tests.
func fastGenExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.NewCircuitBreaker("generation"), func(o *resilience.ExecutorOptions) {
		o.Config = resilience.RetryConfig{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	})
}

type testStack struct {
	orch  *Orchestrator
	coord *memory.Coordinator
	log   *checkpoint.Log
	sink  *testutil.CapturingSink
	gen   *scriptedGenerator
}

func newTestStack(t *testing.T, optFns ...func(o *Options)) *testStack {
	t.Helper()
	gen := newScriptedGenerator()
	store := memory.NewSemanticStore(memory.NewInMemoryIndex(), memory.NewMockEmbedder(0))
	coord := memory.NewCoordinator(store, gen)
	log := checkpoint.NewLog(checkpoint.NewInMemoryStore())
	sink := testutil.NewCapturingSink()

	base := []func(o *Options){func(o *Options) {
		o.Sink = sink
		o.GenerationExecutor = fastGenExecutor()
	}}
	orch := New(log, coord, gen, append(base, optFns...)...)
	return &testStack{orch: orch, coord: coord, log: log, sink: sink, gen: gen}
}

func TestOrchestrator_TextTurn(t *testing.T) {
	s := newTestStack(t)
	s.gen.replies["hello"] = "hi there"

	res, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Reply)
	assert.Equal(t, core.WorkflowConversation, res.Workflow)
	assert.False(t, res.Degraded)
	require.NotNil(t, res.Checkpoint)
	assert.Nil(t, res.Checkpoint.ParentCheckpointID, "first turn starts a new chain")

	state, err := core.UnmarshalConversationState(res.Checkpoint.StateBlob)
	require.NoError(t, err)
	assert.Equal(t, uint(1), state.TurnCount)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, core.RoleUser, state.Messages[0].Role)
	assert.Equal(t, "hello", state.Messages[0].Text)
	assert.Equal(t, core.RoleAssistant, state.Messages[1].Role)
}

func TestOrchestrator_TurnsChainCheckpoints(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	first, err := s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "one"})
	require.NoError(t, err)
	second, err := s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "two"})
	require.NoError(t, err)

	require.NotNil(t, second.Checkpoint.ParentCheckpointID)
	assert.Equal(t, first.Checkpoint.CheckpointID, *second.Checkpoint.ParentCheckpointID)

	state, err := core.UnmarshalConversationState(second.Checkpoint.StateBlob)
	require.NoError(t, err)
	assert.Equal(t, uint(2), state.TurnCount)
	assert.Len(t, state.Messages, 4, "history accumulates across turns")
}

func TestOrchestrator_RecallsMemoriesAcrossTurns(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	s.gen.classifications["My name is Alex"] = core.MemoryFact

	_, err := s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "My name is Alex"})
	require.NoError(t, err)
	s.coord.Flush()

	_, err = s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "What is my name?"})
	require.NoError(t, err)
	merged := s.gen.lastInstructions()
	assert.Contains(t, merged, "Relevant memories:")
	assert.Contains(t, merged, "- My name is Alex")

	// A different session must not see those memories.
	_, err = s.orch.Run(ctx, TurnInput{ThreadID: "t2", SessionID: "u2", Text: "What is my name?"})
	require.NoError(t, err)
	assert.NotContains(t, s.gen.lastInstructions(), "Alex")
}

func TestOrchestrator_DegradedReplyStillCheckpoints(t *testing.T) {
	s := newTestStack(t, func(o *Options) {
		o.FallbackText = "sorry, try again later"
	})
	s.gen.failures = 10

	res, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Text: "hello"})
	require.NoError(t, err, "degraded turns are results, not errors")
	assert.True(t, res.Degraded)
	assert.Equal(t, "sorry, try again later", res.Reply)
	require.NotNil(t, res.Checkpoint, "END must run even on generation failure")

	state, err := core.UnmarshalConversationState(res.Checkpoint.StateBlob)
	require.NoError(t, err)
	assert.Equal(t, "sorry, try again later", state.Messages[len(state.Messages)-1].Text)

	head, err := s.log.Latest(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, res.Checkpoint.CheckpointID, head.CheckpointID)
}

func TestOrchestrator_PersonaAndMemoryMerged(t *testing.T) {
	s := newTestStack(t, func(o *Options) {
		o.Persona = "You are a terse pirate."
	})

	_, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Text: "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.gen.lastInstructions(), "You are a terse pirate."), "persona leads the merged context")
}

func TestOrchestrator_SummarizeTriggersOnThresholdMultiples(t *testing.T) {
	s := newTestStack(t, func(o *Options) {
		o.SummarizeEvery = 2
		o.SummaryKeep = 2
	})
	ctx := context.Background()

	_, err := s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "turn one"})
	require.NoError(t, err)
	assert.Empty(t, s.sink.Named("summarize_triggered"), "turn 1 must not summarize")

	res, err := s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "turn two"})
	require.NoError(t, err)
	events := s.sink.Named("summarize_triggered")
	require.Len(t, events, 1, "turn 2 hits the threshold")
	trig := events[0].(core.SummarizeTriggered)
	assert.Equal(t, uint(2), trig.TurnCount)
	assert.Equal(t, 2, trig.Replaced)

	state, err := core.UnmarshalConversationState(res.Checkpoint.StateBlob)
	require.NoError(t, err)
	require.Len(t, state.Messages, 3, "oldest messages collapse into one summary turn")
	assert.Equal(t, core.RoleSystem, state.Messages[0].Role)
	assert.Contains(t, state.Messages[0].Text, "Conversation summary: ")
	assert.Equal(t, uint(2), state.LastSummarizedAt)

	_, err = s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "turn three"})
	require.NoError(t, err)
	assert.Len(t, s.sink.Named("summarize_triggered"), 1, "turn 3 is not a multiple of the threshold")
}

func TestOrchestrator_AudioTurn(t *testing.T) {
	transcriber := speech.NewMockTranscriber()
	transcriber.AddTranscript([]byte{0x01, 0x02}, "hello from voice")
	s := newTestStack(t, func(o *Options) {
		o.Transcriber = transcriber
		o.Synthesizer = speech.NewMockSynthesizer()
	})
	s.gen.replies["hello from voice"] = "voice reply"

	res, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Audio: []byte{0x01, 0x02}})
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowAudio, res.Workflow)
	assert.Equal(t, "voice reply", res.Reply)
	assert.Equal(t, []byte("voice reply"), res.Audio)

	state, err := core.UnmarshalConversationState(res.Checkpoint.StateBlob)
	require.NoError(t, err)
	assert.Equal(t, "hello from voice", state.Messages[0].Text, "the transcript joins the history")
	assert.Equal(t, core.WorkflowAudio, state.Workflow)
}

func TestOrchestrator_TranscriptionFailureDegrades(t *testing.T) {
	transcriber := speech.NewMockTranscriber()
	transcriber.FailNext(10)
	s := newTestStack(t, func(o *Options) {
		o.Transcriber = speech.NewResilientTranscriber(transcriber, fastGenExecutor())
	})

	res, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Audio: []byte{0x01}})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, DefaultFallbackText, res.Reply)
	assert.NotNil(t, res.Checkpoint, "turn boundary is preserved")
}

func TestOrchestrator_SynthesisFailureKeepsText(t *testing.T) {
	synth := speech.NewMockSynthesizer()
	synth.FailNext(10)
	s := newTestStack(t, func(o *Options) {
		o.Transcriber = speech.NewMockTranscriber()
		o.Synthesizer = speech.NewResilientSynthesizer(synth, fastGenExecutor())
	})

	res, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Audio: []byte("say hi")})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.NotEmpty(t, res.Reply)
	assert.Nil(t, res.Audio, "synthesis failure degrades to text only")
}

func TestOrchestrator_ImageTurn(t *testing.T) {
	s := newTestStack(t)

	res, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Text: "/image a red fox at dawn"})
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowImage, res.Workflow)
	assert.Contains(t, s.gen.lastInstructions(), "image", "image branch adds a description directive")

	state, err := core.UnmarshalConversationState(res.Checkpoint.StateBlob)
	require.NoError(t, err)
	assert.Equal(t, "a red fox at dawn", state.Messages[0].Text, "the prefix marker is stripped from history")
}

func TestOrchestrator_InputValidation(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	var ve *core.ValidationError
	_, err := s.orch.Run(ctx, TurnInput{SessionID: "u1", Text: "hi"})
	require.ErrorAs(t, err, &ve)

	_, err = s.orch.Run(ctx, TurnInput{ThreadID: "t1", Text: "hi"})
	require.ErrorAs(t, err, &ve)

	_, err = s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1"})
	require.ErrorAs(t, err, &ve)

	// Audio without a transcriber is rejected up front.
	_, err = s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Audio: []byte{0x01}})
	require.ErrorAs(t, err, &ve)
}

func TestOrchestrator_ResumeFromOlderCheckpoint(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	first, err := s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "one"})
	require.NoError(t, err)
	_, err = s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "two"})
	require.NoError(t, err)

	branch, err := s.orch.Run(ctx, TurnInput{
		ThreadID:   "t1",
		SessionID:  "u1",
		Text:       "two prime",
		ResumeFrom: first.Checkpoint.CheckpointID,
	})
	require.NoError(t, err)
	require.NotNil(t, branch.Checkpoint.ParentCheckpointID)
	assert.Equal(t, first.Checkpoint.CheckpointID, *branch.Checkpoint.ParentCheckpointID, "resumed turn parents to the named checkpoint")

	state, err := core.UnmarshalConversationState(branch.Checkpoint.StateBlob)
	require.NoError(t, err)
	assert.Equal(t, uint(2), state.TurnCount)
	for _, m := range state.Messages {
		assert.NotEqual(t, "two", m.Text, "the abandoned branch's turn is absent")
	}

	_, err = s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: "x", ResumeFrom: "missing"})
	assert.ErrorIs(t, err, core.ErrCheckpointNotFound)
}

func TestOrchestrator_SameThreadTurnsAreSerialized(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.orch.Run(ctx, TurnInput{ThreadID: "t1", SessionID: "u1", Text: fmt.Sprintf("turn %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// The chain must be linear: walking parents from the head visits every
	// checkpoint exactly once.
	head, err := s.log.Latest(ctx, "t1")
	require.NoError(t, err)
	seen := 0
	for cp := head; cp != nil; {
		seen++
		if cp.ParentCheckpointID == nil {
			break
		}
		cp, err = s.log.Get(ctx, "t1", *cp.ParentCheckpointID)
		require.NoError(t, err)
	}
	assert.Equal(t, 8, seen)
}

func TestOrchestrator_ConcurrencyLimit(t *testing.T) {
	s := newTestStack(t, func(o *Options) {
		o.MaxConcurrentTurns = 1
	})
	s.gen.entered = make(chan struct{}, 1)
	s.gen.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Text: "slow"})
		done <- err
	}()
	<-s.gen.entered

	_, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t2", SessionID: "u2", Text: "fast"})
	require.Error(t, err, "second concurrent turn is rejected at capacity")
	assert.Contains(t, err.Error(), "capacity")

	close(s.gen.block)
	require.NoError(t, <-done)
	assert.Equal(t, 0, s.orch.Limiter().Active())
}

func TestOrchestrator_EmitsTurnEvents(t *testing.T) {
	s := newTestStack(t)

	_, err := s.orch.Run(context.Background(), TurnInput{ThreadID: "t1", SessionID: "u1", Text: "hello"})
	require.NoError(t, err)

	started := s.sink.Named("turn_started")
	require.Len(t, started, 1)
	assert.Equal(t, "t1", started[0].(core.TurnStarted).ThreadID)

	finished := s.sink.Named("turn_finished")
	require.Len(t, finished, 1)
	fin := finished[0].(core.TurnFinished)
	assert.False(t, fin.Degraded)
	assert.Greater(t, fin.Duration, time.Duration(0))
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name  string
		input TurnInput
		want  core.WorkflowKind
	}{
		{"plain text", TurnInput{Text: "hello"}, core.WorkflowConversation},
		{"image prefix", TurnInput{Text: "/image a red fox"}, core.WorkflowImage},
		{"bare image prefix", TurnInput{Text: "/image"}, core.WorkflowImage},
		{"image prefix padded", TurnInput{Text: "  /image sunset  "}, core.WorkflowImage},
		{"image word mid-sentence", TurnInput{Text: "describe an /image"}, core.WorkflowConversation},
		{"audio wins over text", TurnInput{Text: "/image x", Audio: []byte{0x01}}, core.WorkflowAudio},
		{"audio only", TurnInput{Audio: []byte{0x01}}, core.WorkflowAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.input))
		})
	}
}

func TestImageSubject(t *testing.T) {
	assert.Equal(t, "a red fox", imageSubject("/image a red fox"))
	assert.Equal(t, "", imageSubject("/image"))
}

func TestTurnLimiter(t *testing.T) {
	tl := NewTurnLimiter(2)
	require.NoError(t, tl.Acquire())
	require.NoError(t, tl.Acquire())
	require.Error(t, tl.Acquire())
	tl.Release()
	require.NoError(t, tl.Acquire())
	assert.Equal(t, 2, tl.Active())
	assert.Equal(t, uint64(3), tl.Total())

	unlimited := NewTurnLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Acquire())
	}
}
