package errors

import "errors"

var (
	ErrNotFound = errors.New("reservation not found")

	ErrVersionConflict = errors.New("reservation was modified concurrently")

	// ErrHolderBusy and ErrSlotBusy are raised by the store itself when an
	// insert or reactivation would break per-holder or per-slot exclusivity.
	ErrHolderBusy = errors.New("holder already has an active reservation")
	ErrSlotBusy   = errors.New("slot already has an active reservation")
)
