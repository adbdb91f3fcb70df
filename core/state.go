package core

import (
	"encoding/json"
	"fmt"
)

// WorkflowKind classifies which branch of the turn pipeline handles the
// latest input.
type WorkflowKind string

const (
	// WorkflowConversation is the plain text branch.
	WorkflowConversation WorkflowKind = "conversation"
	// WorkflowImage is the image-request branch.
	WorkflowImage WorkflowKind = "image"
	// WorkflowAudio is the spoken-input branch.
	WorkflowAudio WorkflowKind = "audio"
)

// ConversationState is the in-memory working state of one active turn. It is
// constructed from the latest checkpoint at turn start, mutated by each
// pipeline stage, and serialized back into a new checkpoint at turn end.
//
// Contract:
//   - Message history is ordered and append-only during a turn
//   - RecentMessages returns a defensive copy
//   - Clone performs deep copies of slices for safe divergence.
type ConversationState struct {
	ThreadID      string       `json:"thread_id"`
	Messages      []Message    `json:"messages"`
	MemoryContext string       `json:"memory_context"`
	Workflow      WorkflowKind `json:"workflow_kind"`
	TurnCount     uint         `json:"turn_count"`
	// LastSummarizedAt is the turn count at which history was last
	// compressed, zero if never.
	LastSummarizedAt uint `json:"last_summarized_at"`
}

// NewConversationState creates an empty state for a thread.
func NewConversationState(threadID string) *ConversationState {
	return &ConversationState{
		ThreadID: threadID,
		Messages: []Message{},
		Workflow: WorkflowConversation,
	}
}

// AppendMessage adds a message to the ordered history.
func (s *ConversationState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

// RecentMessages returns a copy of the last n messages (or all of them when
// fewer exist).
func (s *ConversationState) RecentMessages(n int) []Message {
	if n <= 0 || len(s.Messages) == 0 {
		return nil
	}
	start := len(s.Messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// Clone returns a deep copy of the state safe for independent mutation.
func (s *ConversationState) Clone() *ConversationState {
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	return &clone
}

// Marshal serializes the state into a checkpoint blob.
func (s *ConversationState) Marshal() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal conversation state: %w", err)
	}
	return b, nil
}

// UnmarshalConversationState restores a state from a checkpoint blob.
func UnmarshalConversationState(blob []byte) (*ConversationState, error) {
	var s ConversationState
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	return &s, nil
}
