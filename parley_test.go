package parley

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/orchestrator"
	"github.com/parleyhq/parley/speech"
)

func TestParley_ChatRoundTrip(t *testing.T) {
	gen := model.NewMockGenerator()
	gen.AddReply("hello", "hi there")
	p := New(gen)
	ctx := context.Background()

	res, err := p.Chat(ctx, "thread-1", "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", res.Reply)
	assert.Equal(t, core.WorkflowConversation, res.Workflow)
	require.NotNil(t, res.Checkpoint)

	second, err := p.Chat(ctx, "thread-1", "user-1", "and again")
	require.NoError(t, err)
	require.NotNil(t, second.Checkpoint.ParentCheckpointID)
	assert.Equal(t, res.Checkpoint.CheckpointID, *second.Checkpoint.ParentCheckpointID)

	require.NoError(t, p.Shutdown(ctx))
}

func TestParley_MemorySurvivesAcrossThreads(t *testing.T) {
	gen := model.NewMockGenerator()
	gen.AddClassification("I love hiking", core.MemoryPreference)
	p := New(gen)
	ctx := context.Background()

	_, err := p.Chat(ctx, "thread-1", "user-1", "I love hiking")
	require.NoError(t, err)
	p.Memory().Flush()

	// A new thread for the same session recalls the stored preference.
	recall := p.Memory().Recall(ctx, []core.Message{core.NewUserMessage("what do I enjoy?")}, "user-1")
	assert.Contains(t, recall, "I love hiking")

	health := p.MemoryHealth(ctx)
	assert.True(t, health.Reachable)
	assert.Equal(t, 1, health.RecordCount)
}

func TestParley_SpeakUsesAudioBranch(t *testing.T) {
	gen := model.NewMockGenerator()
	gen.AddReply("good morning", "morning!")
	transcriber := speech.NewMockTranscriber()
	transcriber.AddTranscript([]byte{0xAA}, "good morning")

	p := New(gen, func(o *Options) {
		o.Transcriber = transcriber
		o.Synthesizer = speech.NewMockSynthesizer()
	})

	res, err := p.Speak(context.Background(), "thread-1", "user-1", []byte{0xAA})
	require.NoError(t, err)
	assert.Equal(t, core.WorkflowAudio, res.Workflow)
	assert.Equal(t, "morning!", res.Reply)
	assert.Equal(t, []byte("morning!"), res.Audio)
}

func TestParley_RunResumesHistoricalCheckpoint(t *testing.T) {
	gen := model.NewMockGenerator()
	p := New(gen)
	ctx := context.Background()

	first, err := p.Chat(ctx, "thread-1", "user-1", "one")
	require.NoError(t, err)
	_, err = p.Chat(ctx, "thread-1", "user-1", "two")
	require.NoError(t, err)

	branch, err := p.Run(ctx, orchestrator.TurnInput{
		ThreadID:   "thread-1",
		SessionID:  "user-1",
		Text:       "alternate two",
		ResumeFrom: first.Checkpoint.CheckpointID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.Checkpoint.CheckpointID, *branch.Checkpoint.ParentCheckpointID)
}

func TestParley_BreakerSnapshots(t *testing.T) {
	p := New(model.NewMockGenerator())

	names := map[string]bool{}
	for _, s := range p.Breakers() {
		names[s.Dependency] = true
	}
	assert.True(t, names["generation"])
	assert.True(t, names["semantic-store"])
}
