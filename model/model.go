package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/parleyhq/parley/core"
)

// ClassifyInstructions is the prompt both provider adapters use for the
// memory-importance classification step. The model must answer with a single
// token so parsing stays trivial and cheap.
const ClassifyInstructions = `You decide whether a user statement contains durable personal information worth remembering across conversations.
Answer with exactly one word:
- FACT for stable facts about the user (name, job, location)
- PREFERENCE for likes, dislikes and habits
- EMOTION for lasting emotional context
- SKIP for small talk, questions and anything ephemeral`

// ParseClassification maps a classification reply to a memory kind. The
// boolean reports whether the text should be stored at all; unknown replies
// are treated as SKIP rather than failing the memory path.
func ParseClassification(reply string) (core.MemoryKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "FACT":
		return core.MemoryFact, true
	case "PREFERENCE":
		return core.MemoryPreference, true
	case "EMOTION":
		return core.MemoryEmotion, true
	default:
		return "", false
	}
}

// MockGenerator is a scripted, thread-safe core.Generator for tests and
// examples. Replies are matched on the text of the last message; unmatched
// inputs get a deterministic echo. Classifications are matched the same way
// and default to SKIP.
type MockGenerator struct {
	mu              sync.Mutex
	replies         map[string]string
	classifications map[string]core.MemoryKind
	failures        int
	generateCalls   int
	classifyCalls   int
}

// NewMockGenerator creates an empty mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		replies:         make(map[string]string),
		classifications: make(map[string]core.MemoryKind),
	}
}

// AddReply registers a canned reply for an input text.
func (m *MockGenerator) AddReply(input, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[input] = reply
}

// AddClassification marks an input text as durable with the given kind.
func (m *MockGenerator) AddClassification(input string, kind core.MemoryKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifications[input] = kind
}

// FailNext makes the next n Generate calls return a transient error.
func (m *MockGenerator) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// GenerateCalls returns how many times Generate ran.
func (m *MockGenerator) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// Generate implements core.Generator.
func (m *MockGenerator) Generate(ctx context.Context, instructions string, messages []core.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateCalls++
	if m.failures > 0 {
		m.failures--
		return "", core.Transient("mock generate", fmt.Errorf("scripted failure"))
	}

	var last string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			last = messages[i].Text
			break
		}
	}
	if reply, ok := m.replies[last]; ok {
		return reply, nil
	}
	return fmt.Sprintf("Mock reply to: %s", last), nil
}

// Classify implements core.Generator.
func (m *MockGenerator) Classify(ctx context.Context, text string) (core.MemoryKind, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classifyCalls++
	if kind, ok := m.classifications[text]; ok {
		return kind, true, nil
	}
	return "", false, nil
}
