// Package availability answers slot occupancy questions. Every answer is
// derived from the live active reservation set at query time; nothing is
// cached, so it can never disagree with the store's exclusivity keys.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"

	reservationserrors "campusq/internal/reservations/errors"
	"campusq/internal/reservations/repository"
)

type Index struct {
	repo repository.ReservationRepository
}

func NewIndex(repo repository.ReservationRepository) *Index {
	return &Index{repo: repo}
}

func (i *Index) IsOccupied(ctx context.Context, serviceName, slotID, timeWindow string) (bool, error) {
	_, err := i.repo.FindActiveBySlot(ctx, serviceName, slotID, timeWindow)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, reservationserrors.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check slot occupancy: %w", err)
	}
}

// OccupiedSlots returns the distinct occupied slot ids of a service in one
// time window, sorted.
func (i *Index) OccupiedSlots(ctx context.Context, serviceName, timeWindow string) ([]string, error) {
	active, err := i.repo.ListActiveByService(ctx, serviceName, timeWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupied slots: %w", err)
	}

	seen := make(map[string]struct{}, len(active))
	slots := make([]string, 0, len(active))
	for _, r := range active {
		if _, ok := seen[r.SlotID]; ok {
			continue
		}
		seen[r.SlotID] = struct{}{}
		slots = append(slots, r.SlotID)
	}
	sort.Strings(slots)
	return slots, nil
}
