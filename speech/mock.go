package speech

import (
	"context"
	"fmt"
	"sync"
)

// MockTranscriber is a scripted core.Transcriber for tests and examples. It
// returns the audio payload interpreted as UTF-8 text unless a reply is
// scripted for it.
type MockTranscriber struct {
	mu       sync.Mutex
	replies  map[string]string
	failures int
	calls    int
}

// NewMockTranscriber creates an empty mock transcriber.
func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{replies: make(map[string]string)}
}

// AddTranscript registers a transcript for an audio payload.
func (m *MockTranscriber) AddTranscript(audio []byte, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[string(audio)] = text
}

// FailNext makes the next n calls fail.
func (m *MockTranscriber) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// Calls returns how many times Transcribe ran.
func (m *MockTranscriber) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Transcribe implements core.Transcriber.
func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return "", fmt.Errorf("scripted transcription failure")
	}
	if text, ok := m.replies[string(audio)]; ok {
		return text, nil
	}
	return string(audio), nil
}

// MockSynthesizer is a scripted core.Synthesizer returning the text bytes as
// the audio payload.
type MockSynthesizer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

// NewMockSynthesizer creates a mock synthesizer.
func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

// FailNext makes the next n calls fail.
func (m *MockSynthesizer) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

// Calls returns how many times Synthesize ran.
func (m *MockSynthesizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Synthesize implements core.Synthesizer.
func (m *MockSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return nil, fmt.Errorf("scripted synthesis failure")
	}
	return []byte(text), nil
}
