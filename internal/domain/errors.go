package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound = errors.New("domain: not found")
	ErrConflict = errors.New("domain: conflict")

	// ErrCorruptState marks a persisted session whose current_step is not a
	// member of the step enum. This is a schema/version mismatch, not a
	// runtime fault, and is never recovered automatically.
	ErrCorruptState = errors.New("domain: corrupt session state")
)
