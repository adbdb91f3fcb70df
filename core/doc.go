// Package core provides the foundational domain types and contracts used by
// Parley. It defines the core abstractions for:
//
//   - Messages and per-turn ConversationState (serializable into checkpoints)
//   - Checkpoints (immutable, chained conversation snapshots)
//   - Memory records and vector index backends for long-term recall
//   - External collaborators (generation, transcription, synthesis, embedding)
//   - The error taxonomy shared by the resilience and orchestration layers
//   - Structured observability events emitted by the core
//
// The package intentionally keeps implementation concerns (persistence,
// breaker mechanics, the turn state machine) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
