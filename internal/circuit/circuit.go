package circuit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/torgate/torgate/internal/tor"
)

// State is the lifecycle state of a circuit.
// Transitions are monotonic: Building -> Open -> Destroyed. There is no
// way back to an earlier state.
type State int32

const (
	// StateBuilding means the circuit's path is being established.
	StateBuilding State = iota

	// StateOpen means the circuit is usable for streams.
	StateOpen

	// StateDestroyed means the circuit has been torn down.
	StateDestroyed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateOpen:
		return "open"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Circuit is one live circuit: an isolation domain at the Tor level
// plus the set of stream handles it owns.
type Circuit struct {
	// id is the caller-supplied circuit handle.
	id string

	// createdAt is when the circuit finished building.
	createdAt time.Time

	// dialer opens streams isolated to this circuit.
	dialer tor.Dialer

	// state holds a State value; atomic because dials read it without
	// taking the stream-set lock.
	state atomic.Int32

	// mu guards streams.
	mu sync.Mutex

	// streams is the set of child stream handles, walked on destroy.
	streams map[string]struct{}
}

// newCircuit creates a circuit in the Building state.
func newCircuit(id string, dialer tor.Dialer) *Circuit {
	return &Circuit{
		id:      id,
		dialer:  dialer,
		streams: make(map[string]struct{}),
	}
}

// ID returns the circuit handle.
func (c *Circuit) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Circuit) State() State {
	return State(c.state.Load())
}

// CreatedAt returns when the circuit became Open.
func (c *Circuit) CreatedAt() time.Time {
	return c.createdAt
}

// markOpen transitions Building -> Open.
func (c *Circuit) markOpen() {
	c.state.CompareAndSwap(int32(StateBuilding), int32(StateOpen))
	c.createdAt = time.Now()
}

// markDestroyed transitions to Destroyed from any state.
func (c *Circuit) markDestroyed() {
	c.state.Store(int32(StateDestroyed))
}

// addStream records a child stream handle. It rechecks the lifecycle
// state under mu: drainStreams runs under the same mutex after the
// circuit is marked destroyed, so a false return here means the drain
// has already happened (or is about to) and the handle would never be
// walked by it.
func (c *Circuit) addStream(streamID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateOpen {
		return false
	}
	c.streams[streamID] = struct{}{}
	return true
}

// removeStream drops a child stream handle.
func (c *Circuit) removeStream(streamID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, streamID)
}

// drainStreams empties and returns the child stream handle set.
func (c *Circuit) drainStreams() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.streams))
	for id := range c.streams {
		ids = append(ids, id)
	}
	c.streams = make(map[string]struct{})
	return ids
}

// StreamCount returns the number of live child streams.
func (c *Circuit) StreamCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}
