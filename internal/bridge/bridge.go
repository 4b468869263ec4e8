package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// Bridge errors.
var (
	// ErrTimeout is returned when an operation does not complete within
	// its bounded timeout. Indefinite blocking on unreachable peers is a
	// defect, so every call through the pool carries a deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrPoolClosed is returned when a call is made through a pool that
	// has been shut down.
	ErrPoolClosed = errors.New("bridge pool is closed")
)

// DefaultMaxCalls is the default number of concurrently blocked calls.
// Each blocked call pins one goroutine plus one worker goroutine, so the
// bound keeps resource usage predictable when many caller threads pile
// onto the boundary at once.
const DefaultMaxCalls = 64

// Pool is a bounded blocking bridge over asynchronous operations.
//
// Call runs the operation in its own goroutine and blocks the caller on
// a completion channel, the same shape the Tor dialer uses to add
// context support to a context-free dial. The semaphore caps how many
// calls may be in flight at once; excess callers queue on the semaphore
// rather than spawning unbounded workers.
type Pool struct {
	sem            *semaphore.Weighted
	defaultTimeout time.Duration
	done           chan struct{}
}

// NewPool creates a bridge pool allowing at most maxCalls concurrently
// blocked operations. Values <= 0 fall back to DefaultMaxCalls.
// defaultTimeout bounds operations invoked with no explicit timeout.
func NewPool(maxCalls int64, defaultTimeout time.Duration) *Pool {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	return &Pool{
		sem:            semaphore.NewWeighted(maxCalls),
		defaultTimeout: defaultTimeout,
		done:           make(chan struct{}),
	}
}

// Call runs op and blocks until it completes, fails, or exceeds timeout.
// A timeout <= 0 uses the pool's default. The context passed to op is
// cancelled when the timeout fires or the pool shuts down, so op must
// honor its context for the bridge to reclaim the worker promptly.
//
// The completion channel is buffered: if the caller gives up on timeout,
// the worker's send still succeeds and the goroutine exits instead of
// leaking.
func (p *Pool) Call(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	select {
	case <-p.done:
		return ErrPoolClosed
	default:
	}

	if timeout <= 0 {
		timeout = p.defaultTimeout
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("bridge pool acquire: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		errCh <- op(opCtx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-opCtx.Done():
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return opCtx.Err()
	case <-p.done:
		return ErrPoolClosed
	}
}

// Close shuts the pool down. Calls blocked in Call return ErrPoolClosed;
// in-flight operations keep their cancelled contexts and are expected to
// unwind on their own. Close is idempotent.
func (p *Pool) Close() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
}
