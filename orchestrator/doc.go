// Package orchestrator drives the multi-stage conversation pipeline as an
// explicit state machine:
//
//	START -> MEMORY_RECALL -> ROUTE -> {TEXT | IMAGE | AUDIO} ->
//	CONTEXT_MERGE -> GENERATE -> MEMORY_REMEMBER -> MAYBE_SUMMARIZE -> END
//
// Each turn loads the latest checkpoint for its thread, recalls relevant
// long-term memories, routes the input to a workflow branch, generates a
// reply through the resilience layer, schedules a fire-and-forget memory
// write, periodically compresses history, and always appends a new
// checkpoint at END, even when the turn degraded or timed out.
//
// Turns for distinct threads run fully in parallel; turns for the same
// thread are serialized by a per-thread lock.
package orchestrator
