// Package testutil provides fluent helpers for constructing conversation
// state and capturing emitted events in tests.
package testutil
