package registry

import (
	"errors"
	"hash/fnv"
	"sync"
)

// Registry errors.
var (
	// ErrHandleExists is returned when inserting a handle that already
	// denotes a live resource. Handle strings are never reused while
	// their resource is live.
	ErrHandleExists = errors.New("handle already registered")

	// ErrHandleNotFound is returned when a handle does not denote a live
	// resource. A handle that was closed or destroyed reports this error,
	// never a stale resource.
	ErrHandleNotFound = errors.New("handle not found")
)

// shardCount is the number of lock shards in a Table.
// 16 shards keeps lock contention low for realistic handle counts while
// the per-shard maps stay small. The count must be a power of two so
// shard selection can mask the hash.
const shardCount = 16

// shard is a single lock-protected portion of the table.
type shard[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// Table is a sharded, concurrency-safe handle table.
//
// The table records where a resource lives but does not own it: removal
// from the table is what triggers resource teardown, performed by the
// caller with the returned value. Insert and remove are atomic per
// handle, so concurrent inserts of the same handle resolve to exactly
// one winner and concurrent removes to exactly one success.
type Table[T any] struct {
	shards [shardCount]shard[T]
}

// New creates an empty handle table.
func New[T any]() *Table[T] {
	t := &Table[T]{}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]T)
	}
	return t
}

// shardFor selects the shard responsible for the given handle.
func (t *Table[T]) shardFor(handle string) *shard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(handle)) // fnv hash writes never fail
	return &t.shards[h.Sum32()&(shardCount-1)]
}

// Put registers a resource under the given handle.
// It returns ErrHandleExists if the handle already denotes a live
// resource; the table is unchanged in that case.
func (t *Table[T]) Put(handle string, v T) error {
	s := t.shardFor(handle)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[handle]; ok {
		return ErrHandleExists
	}
	s.entries[handle] = v
	return nil
}

// Get looks up the resource registered under the given handle.
func (t *Table[T]) Get(handle string) (T, bool) {
	s := t.shardFor(handle)
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[handle]
	return v, ok
}

// Remove unregisters the handle and returns the resource that was
// registered under it. Exactly one of several concurrent removes of the
// same handle succeeds; the losers receive ErrHandleNotFound. This
// first-wins discipline is what makes double close a deterministic
// failure rather than a race.
func (t *Table[T]) Remove(handle string) (T, error) {
	s := t.shardFor(handle)
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.entries[handle]
	if !ok {
		var zero T
		return zero, ErrHandleNotFound
	}
	delete(s.entries, handle)
	return v, nil
}

// Len reports the number of live handles.
func (t *Table[T]) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Handles returns the handles of all live resources.
// The snapshot is taken shard by shard, so handles inserted or removed
// concurrently may or may not appear.
func (t *Table[T]) Handles() []string {
	var handles []string
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.RLock()
		for h := range s.entries {
			handles = append(handles, h)
		}
		s.mu.RUnlock()
	}
	return handles
}

// Drain removes all entries and returns the resources that were live.
// Used during session teardown to hand every remaining resource to its
// destructor exactly once.
func (t *Table[T]) Drain() []T {
	var values []T
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for h, v := range s.entries {
			values = append(values, v)
			delete(s.entries, h)
		}
		s.mu.Unlock()
	}
	return values
}
