package ot

import "errors"

// Error kinds of the algebra. Callers match with errors.Is; the wrapped
// message carries the specifics.
var (
	// ErrLengthMismatch reports that a change set is not applicable to the
	// document (or concurrent change set) it was paired with. Fatal to the
	// caller: it indicates corruption or a protocol bug, never user input.
	ErrLengthMismatch = errors.New("length mismatch")

	// ErrCompositionMismatch reports that the output length of the first
	// change set does not match the input length of the second.
	ErrCompositionMismatch = errors.New("composition mismatch")

	// ErrMalformedChangeSet reports a change set that failed deserialization
	// or invariant checks. Rejected at the RPC boundary.
	ErrMalformedChangeSet = errors.New("malformed change set")
)
