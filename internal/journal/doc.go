// Package journal provides optional SQLite-backed recording of session,
// circuit, and stream lifecycle events.
//
// The boundary collapses every failure into a bare failure code, so the
// journal is the durable side channel for understanding what a caller's
// handle actually did: when the circuit was built, when each stream
// opened and closed, and which operations failed.
package journal
