package rotation

import "errors"

var (
	// ErrNotFound is returned when a session, participant, exercise or
	// recorded progress cannot be located.
	ErrNotFound = errors.New("not found")
	// ErrPermission is returned when a participant acts out of turn.
	ErrPermission = errors.New("permission denied")
	// ErrInvalidArgument is returned for malformed input such as an
	// out-of-range set number.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrFinished is returned for operations against a session that has
	// already finished or been abandoned.
	ErrFinished = errors.New("session is no longer active")
	// ErrRegistryFull is returned when no unused session id could be
	// generated within the configured number of attempts.
	ErrRegistryFull = errors.New("no free session id")
)
