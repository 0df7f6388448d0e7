package types

import "errors"

// The error taxonomy reported to callers. All three are synchronous results
// of the offending operation; nothing is retried internally. Wrap these with
// fmt.Errorf("...: %w", ...) and discriminate with errors.Is.
var (
	// ErrValidation marks malformed input: empty or over-length room name,
	// username or content (bounds are checked after trimming).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to an unknown (or already reclaimed) room.
	ErrNotFound = errors.New("not found")

	// ErrExpired marks a write against a room past its TTL.
	ErrExpired = errors.New("room expired")
)
