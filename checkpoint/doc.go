// Package checkpoint persists conversation state per thread id so turns are
// resumable across process restarts. The Store interface lives here together
// with the in-memory implementation; the postgres sub-package provides the
// durable backend.
//
// Stores enforce no cross-turn locking: two concurrent turns against the
// same thread id race with last-write-wins semantics. Callers needing
// stricter guarantees must serialize per thread.
package checkpoint
