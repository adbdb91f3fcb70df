// Package resilience contains the failure handling primitives that protect
// every call to an unreliable external dependency: a three-state circuit
// breaker, a retry executor with capped exponential backoff, and a registry
// holding one long-lived breaker per dependency name.
//
// One CircuitBreaker instance guards exactly one dependency (generation,
// transcription, synthesis, vector store). Isolation is deliberate: a failing
// dependency must never open another dependency's circuit. Breakers are
// constructed once at process start, kept in a Registry and injected where
// needed rather than accessed through globals.
package resilience
