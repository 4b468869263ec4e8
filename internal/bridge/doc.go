// Package bridge converts asynchronous network operations into blocking
// calls for the boundary surface. Callers of the exported API have no
// notion of goroutines, contexts, or cancellation; every operation that
// touches the network runs through a bounded Pool that blocks the
// calling goroutine until the operation completes, fails, or times out.
package bridge
