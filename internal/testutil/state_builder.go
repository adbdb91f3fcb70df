package testutil

import (
	"github.com/parleyhq/parley/core"
)

// StateBuilder provides a fluent helper for constructing conversation state
// in tests.
// Example:
//
//	state := NewStateBuilder("thread-1").User("hi").Assistant("hello").Turns(3).Build()
//
// Chain only the parts you need; sensible defaults are applied.
type StateBuilder struct {
	threadID      string
	messages      []core.Message
	memoryContext string
	workflow      core.WorkflowKind
	turnCount     uint
}

// NewStateBuilder creates a builder for the given thread.
func NewStateBuilder(threadID string) *StateBuilder {
	return &StateBuilder{threadID: threadID, workflow: core.WorkflowConversation}
}

// User appends a user message (chainable).
func (b *StateBuilder) User(text string) *StateBuilder {
	b.messages = append(b.messages, core.NewUserMessage(text))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *StateBuilder) Assistant(text string) *StateBuilder {
	b.messages = append(b.messages, core.NewAssistantMessage(text))
	return b
}

// System appends a system message (chainable).
func (b *StateBuilder) System(text string) *StateBuilder {
	b.messages = append(b.messages, core.NewSystemMessage(text))
	return b
}

// Exchange appends a user/assistant pair and counts one turn (chainable).
func (b *StateBuilder) Exchange(user, assistant string) *StateBuilder {
	b.turnCount++
	return b.User(user).Assistant(assistant)
}

// MemoryContext sets the recalled memory context (chainable).
func (b *StateBuilder) MemoryContext(ctx string) *StateBuilder {
	b.memoryContext = ctx
	return b
}

// Workflow sets the workflow kind (chainable).
func (b *StateBuilder) Workflow(w core.WorkflowKind) *StateBuilder {
	b.workflow = w
	return b
}

// Turns overrides the turn counter (chainable).
func (b *StateBuilder) Turns(n uint) *StateBuilder {
	b.turnCount = n
	return b
}

// Build constructs the core.ConversationState value.
func (b *StateBuilder) Build() *core.ConversationState {
	state := core.NewConversationState(b.threadID)
	state.Messages = append(state.Messages, b.messages...)
	state.MemoryContext = b.memoryContext
	state.Workflow = b.workflow
	state.TurnCount = b.turnCount
	return state
}

// Blob constructs the state and serializes it to a checkpoint blob. It
// panics on marshal failure, which cannot happen for builder-made states.
func (b *StateBuilder) Blob() []byte {
	blob, err := b.Build().Marshal()
	if err != nil {
		panic(err)
	}
	return blob
}
