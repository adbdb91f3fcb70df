package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/core"
)

// endTimeout bounds the END checkpoint append. END runs on a detached
// context so a turn timeout never skips the turn boundary.
const endTimeout = 10 * time.Second

// TurnInput is one inbound user turn.
type TurnInput struct {
	// ThreadID identifies the conversation for checkpointing.
	ThreadID string
	// SessionID scopes long-term memory. Often equal to ThreadID but kept
	// separate so several threads can share one user's memories.
	SessionID string
	// Text is the user's text input. Ignored when Audio is set.
	Text string
	// Audio is raw spoken input, routed to the audio branch.
	Audio []byte
	// ResumeFrom optionally names an older checkpoint to branch from
	// instead of the thread's head.
	ResumeFrom string
}

// TurnResult is the outcome of one orchestrated turn.
type TurnResult struct {
	// Reply is the assistant's text. On degraded turns it is the fallback.
	Reply string
	// Audio is the synthesized reply for audio turns, nil otherwise or when
	// synthesis degraded.
	Audio []byte
	// Workflow is the branch the turn was routed to.
	Workflow core.WorkflowKind
	// Degraded reports that generation (or transcription) failed after
	// retries and the fallback reply was used.
	Degraded bool
	// Checkpoint is the state snapshot appended at END.
	Checkpoint *core.Checkpoint
	// Duration is wall time from START to END.
	Duration time.Duration
}

// Run executes one turn through the full state machine. It returns a result
// even on degraded turns; an error is returned only for invalid input,
// unknown resume checkpoints, capacity rejection or a failed END append.
func (o *Orchestrator) Run(ctx context.Context, input TurnInput) (*TurnResult, error) {
	if err := validateInput(input, o.transcriber != nil); err != nil {
		return nil, err
	}
	if err := o.limiter.Acquire(); err != nil {
		return nil, err
	}
	defer o.limiter.Release()

	unlock := o.lockThread(input.ThreadID)
	defer unlock()

	start := time.Now()
	turnCtx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()

	// START: restore state from the thread's head (or a named ancestor).
	state, parentID, err := o.loadState(turnCtx, input)
	if err != nil {
		return nil, err
	}

	workflow := Route(input)
	o.sink.Emit(core.TurnStarted{ThreadID: input.ThreadID, Workflow: string(workflow)})
	o.logger.Debug("turn started thread=%s workflow=%s", input.ThreadID, workflow)

	// MEMORY_RECALL: degrades to an empty context, never aborts the turn.
	recallInput := state.RecentMessages(8)
	if input.Text != "" {
		recallInput = append(recallInput, core.NewUserMessage(input.Text))
	}
	memoryContext := o.memory.Recall(turnCtx, recallInput, input.SessionID)

	degraded := false
	userText := input.Text

	// Branches converge on a user message before CONTEXT_MERGE.
	if workflow == core.WorkflowImage {
		userText = imageSubject(input.Text)
	}
	if workflow == core.WorkflowAudio {
		userText, err = o.transcriber.Transcribe(turnCtx, input.Audio)
		if err != nil {
			o.logger.Warn("transcription failed thread=%s err=%v", input.ThreadID, err)
			degraded = true
			userText = ""
		}
	}

	var userMsg core.Message
	if userText != "" {
		userMsg = core.NewUserMessage(userText)
		state.AppendMessage(userMsg)
	}

	// CONTEXT_MERGE + GENERATE.
	reply := o.fallbackText
	if !degraded {
		state.MemoryContext = memoryContext
		instructions := o.mergeContext(memoryContext, workflow)
		reply, err = o.generate(turnCtx, instructions, state.Messages)
		if err != nil {
			o.logger.Warn("generation failed, returning fallback thread=%s err=%v", input.ThreadID, err)
			degraded = true
			reply = o.fallbackText
		}
	}

	state.AppendMessage(core.NewAssistantMessage(reply))
	state.Workflow = workflow
	state.TurnCount++

	// MEMORY_REMEMBER: fire-and-forget, unordered relative to END.
	if userText != "" {
		o.memory.Remember(userMsg, input.SessionID)
	}

	// MAYBE_SUMMARIZE.
	o.maybeSummarize(turnCtx, state)

	// END always executes, on a context detached from the turn's.
	endCtx, endCancel := context.WithTimeout(context.Background(), endTimeout)
	defer endCancel()

	blob, err := state.Marshal()
	if err != nil {
		return nil, err
	}
	cp, err := o.log.Append(endCtx, input.ThreadID, parentID, blob)
	if err != nil {
		return nil, fmt.Errorf("append turn checkpoint: %w", err)
	}

	result := &TurnResult{
		Reply:      reply,
		Workflow:   workflow,
		Degraded:   degraded,
		Checkpoint: cp,
		Duration:   time.Since(start),
	}
	if workflow == core.WorkflowAudio && o.synthesizer != nil && !degraded {
		audio, serr := o.synthesizer.Synthesize(turnCtx, reply)
		if serr != nil {
			o.logger.Warn("synthesis failed, returning text only thread=%s err=%v", input.ThreadID, serr)
		} else {
			result.Audio = audio
		}
	}

	o.sink.Emit(core.TurnFinished{ThreadID: input.ThreadID, Duration: result.Duration, Degraded: degraded})
	o.logger.Info("turn finished thread=%s workflow=%s degraded=%t duration=%s", input.ThreadID, workflow, degraded, result.Duration)
	return result, nil
}

func validateInput(input TurnInput, hasTranscriber bool) error {
	if input.ThreadID == "" {
		return &core.ValidationError{Field: "thread_id", Reason: "must not be empty"}
	}
	if input.SessionID == "" {
		return &core.ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	if input.Text == "" && len(input.Audio) == 0 {
		return &core.ValidationError{Field: "input", Reason: "either text or audio is required"}
	}
	if len(input.Audio) > 0 && !hasTranscriber {
		return &core.ValidationError{Field: "audio", Reason: "no transcriber configured"}
	}
	return nil
}

// loadState restores the working state from the thread head, or from an
// explicitly named ancestor when resuming a historical branch.
func (o *Orchestrator) loadState(ctx context.Context, input TurnInput) (*core.ConversationState, *string, error) {
	var cp *core.Checkpoint
	var err error
	if input.ResumeFrom != "" {
		cp, err = o.log.Get(ctx, input.ThreadID, input.ResumeFrom)
	} else {
		cp, err = o.log.Latest(ctx, input.ThreadID)
	}
	if err != nil {
		return nil, nil, err
	}
	if cp == nil {
		return core.NewConversationState(input.ThreadID), nil, nil
	}
	state, err := core.UnmarshalConversationState(cp.StateBlob)
	if err != nil {
		return nil, nil, err
	}
	id := cp.CheckpointID
	return state, &id, nil
}

// mergeContext concatenates persona, recalled memories and branch directives
// into the generation instructions.
func (o *Orchestrator) mergeContext(memoryContext string, workflow core.WorkflowKind) string {
	parts := make([]string, 0, 3)
	if o.persona != "" {
		parts = append(parts, o.persona)
	}
	if memoryContext != "" {
		parts = append(parts, memoryContext)
	}
	if workflow == core.WorkflowImage {
		parts = append(parts, "The user is asking for an image. Reply with a vivid, self-contained visual description suitable as an image generation prompt.")
	}
	return strings.Join(parts, "\n\n")
}

// generate runs the generation collaborator through its breaker and retry
// loop.
func (o *Orchestrator) generate(ctx context.Context, instructions string, messages []core.Message) (string, error) {
	var reply string
	err := o.genExec.Execute(ctx, func(ctx context.Context) error {
		var genErr error
		reply, genErr = o.generator.Generate(ctx, instructions, messages)
		return genErr
	})
	return reply, err
}

// maybeSummarize compresses the oldest history into a single summary turn
// when turn_count hits a multiple of the threshold. Summarization failures
// leave the history untouched.
func (o *Orchestrator) maybeSummarize(ctx context.Context, state *core.ConversationState) {
	if o.summarizeEvery == 0 || state.TurnCount == 0 || state.TurnCount%o.summarizeEvery != 0 {
		return
	}
	if len(state.Messages) <= o.summaryKeep {
		return
	}

	boundary := len(state.Messages) - o.summaryKeep
	oldest := state.Messages[:boundary]

	var b strings.Builder
	for _, m := range oldest {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	summary, err := o.generate(ctx, "Summarize the following conversation in a compact paragraph, keeping names, preferences and decisions.", []core.Message{core.NewUserMessage(b.String())})
	if err != nil {
		o.logger.Warn("summarization failed, keeping full history thread=%s err=%v", state.ThreadID, err)
		return
	}

	compressed := make([]core.Message, 0, o.summaryKeep+1)
	compressed = append(compressed, core.NewSystemMessage("Conversation summary: "+summary))
	compressed = append(compressed, state.Messages[boundary:]...)
	state.Messages = compressed
	state.LastSummarizedAt = state.TurnCount

	o.sink.Emit(core.SummarizeTriggered{ThreadID: state.ThreadID, TurnCount: state.TurnCount, Replaced: boundary})
	o.logger.Info("history summarized thread=%s replaced=%d turn=%d", state.ThreadID, boundary, state.TurnCount)
}
