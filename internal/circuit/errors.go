package circuit

import "errors"

// Circuit lifecycle errors.
var (
	// ErrCircuitExists is returned when creating a circuit whose id
	// already denotes a live circuit. The second create fails rather
	// than silently reusing the existing circuit; reuse would mask a
	// caller bug.
	ErrCircuitExists = errors.New("circuit id already in use")

	// ErrCircuitNotFound is returned when an operation references a
	// circuit id that is unknown or already destroyed. A second destroy
	// of the same id reports this error.
	ErrCircuitNotFound = errors.New("circuit not found")

	// ErrCircuitNotOpen is returned when dialing through a circuit that
	// is not in the Open state.
	ErrCircuitNotOpen = errors.New("circuit is not open")

	// ErrEmptyCircuitID is returned when a circuit id is empty.
	ErrEmptyCircuitID = errors.New("circuit id must not be empty")

	// ErrInvalidPort is returned when a target port is outside 1-65535.
	ErrInvalidPort = errors.New("port outside valid range 1-65535")
)
