package torgate

import "errors"

// Session lifecycle errors.
var (
	// ErrNotInitialized is returned when an operation runs before Init.
	ErrNotInitialized = errors.New("gateway not initialized")

	// ErrAlreadyInitialized is returned by a second Init. Initializing
	// twice is a caller bug; failing loudly beats silently reloading
	// configuration under live resources.
	ErrAlreadyInitialized = errors.New("gateway already initialized")

	// ErrNotConnected is returned when circuit or stream operations run
	// before Connect or after Disconnect.
	ErrNotConnected = errors.New("gateway not connected")

	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("gateway already connected")

	// ErrBufferTooSmall is returned when an output value does not fit
	// the caller-supplied buffer, terminator included. Output is never
	// truncated.
	ErrBufferTooSmall = errors.New("output buffer too small")

	// ErrNilBuffer is returned when a required buffer argument is nil.
	ErrNilBuffer = errors.New("buffer must not be nil")
)
