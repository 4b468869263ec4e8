// Package registry provides a concurrency-safe mapping from opaque string
// handles to live resources. Handle lookup is the hottest path in the
// boundary, so the table is sharded with per-shard locks rather than
// serialized behind a single mutex.
package registry
