package repository

import (
	"context"
	"time"

	"campusq/pkg/model"
)

type ReservationRepository interface {
	// Create inserts r as version 1. The active-holder and active-slot
	// uniqueness checks happen in the same write and surface as
	// ErrHolderBusy or ErrSlotBusy.
	Create(ctx context.Context, r *model.Reservation) error
	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	FindActiveByHolder(ctx context.Context, holderID string) (*model.Reservation, error)
	FindActiveBySlot(ctx context.Context, serviceName, slotID, timeWindow string) (*model.Reservation, error)
	// ListActiveByService returns the active reservations of one service in
	// one time window.
	ListActiveByService(ctx context.Context, serviceName, timeWindow string) ([]*model.Reservation, error)
	ListByService(ctx context.Context, serviceName string, limit int, offset int64) ([]*model.Reservation, int64, error)
	// ListQueuedDue returns queued reservations whose admission deadline is
	// at or before the given instant. The zero time lists every queued one.
	ListQueuedDue(ctx context.Context, before time.Time) ([]*model.Reservation, error)
	// Update replaces r when the stored version equals expectedVersion and
	// bumps r.Version on success.
	Update(ctx context.Context, r *model.Reservation, expectedVersion int64) error
	Delete(ctx context.Context, id string) (*model.Reservation, error)
	// Watch signals every committed change touching holderID until ctx ends.
	// Signals coalesce; receivers re-read current state.
	Watch(ctx context.Context, holderID string) (<-chan struct{}, error)
}

func holderKey(r *model.Reservation) string {
	return r.HolderID
}

func slotKey(r *model.Reservation) string {
	return r.SlotKey()
}
