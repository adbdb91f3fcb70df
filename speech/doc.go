// Package speech wraps transcription and synthesis collaborators with the
// resilience layer. Each direction gets its own circuit breaker so a failing
// synthesizer never opens the transcriber's circuit.
package speech
