// Package stream owns plain and TLS stream resources multiplexed over
// parent circuits.
//
// Each stream has an independent buffered write path, a direct read
// path, and a monotonic lifecycle (Connecting -> Open -> HalfClosed ->
// Closed). Operations on the same handle are serialized per direction;
// operations on different handles run in parallel. Closing a stream
// interrupts any in-flight read on it.
package stream
