package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message within a conversation.
type Role string

const (
	// RoleSystem marks persona / instruction content injected by the caller.
	RoleSystem Role = "system"
	// RoleUser marks inbound user content.
	RoleUser Role = "user"
	// RoleAssistant marks generated replies.
	RoleAssistant Role = "assistant"
)

// Message is a single conversational turn fragment. Messages are treated as
// immutable once appended to a ConversationState.
type Message struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage creates a user-authored text message stamped with the
// current UTC time.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text, Timestamp: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant reply message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text, Timestamp: time.Now().UTC()}
}

// NewSystemMessage creates a system / persona message.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text, Timestamp: time.Now().UTC()}
}

// NewID generates a new unique identifier for checkpoints and memory records.
//
// Returns a string representation of a new UUID.
func NewID() string { return uuid.NewString() }
