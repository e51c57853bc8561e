package core

import "errors"

var (
	// ErrAlreadyInUse is returned by BeginUsage on a room that is checked out.
	ErrAlreadyInUse = errors.New("private room already in use")
	// ErrSpaceNotFound is returned when a room's space could not be resolved within the retry budget.
	ErrSpaceNotFound = errors.New("private room space not found")
	// ErrAlreadyRegistered is returned by Pool.Add for a space that is already a private room.
	ErrAlreadyRegistered = errors.New("space already registered as private room")
)
