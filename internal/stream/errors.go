package stream

import "errors"

// Stream lifecycle and I/O errors.
var (
	// ErrStreamNotFound is returned when an operation references a
	// stream handle that is unknown or already closed. A second close
	// of the same handle reports this error.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrStreamNotWritable is returned when writing to a stream that is
	// no longer writable.
	ErrStreamNotWritable = errors.New("stream is not writable")

	// ErrHandleInUse is returned when a caller-supplied stream id
	// collides with a live handle. Only TLS streams accept caller ids;
	// plain stream ids are generated and cannot collide.
	ErrHandleInUse = errors.New("stream id already in use")

	// ErrEmptyStreamID is returned when a caller-supplied stream id is
	// empty.
	ErrEmptyStreamID = errors.New("stream id must not be empty")
)
