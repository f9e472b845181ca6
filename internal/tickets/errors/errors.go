package errors

import "errors"

var (
	ErrNotFound = errors.New("record not found")

	ErrVersionConflict = errors.New("record was modified concurrently")

	ErrHolderQueued = errors.New("holder already has an active ticket for this activity")
)
