// Package checkpoint houses the short-term conversation log: an append-only
// chain of immutable state snapshots per thread. The CheckpointStore
// interface lives in the core package to centralize domain contracts; this
// package provides the Log façade that enforces lineage, plus concrete
// backends.
//
// Add additional backends (Postgres, Firestore, etc.) in sub-packages
// without changing any calling code; only the wiring layer needs to decide
// which implementation to instantiate.
package checkpoint
