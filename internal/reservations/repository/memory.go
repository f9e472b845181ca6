package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	reservationserrors "campusq/internal/reservations/errors"
	"campusq/pkg/model"
)

type memoryReservationRepository struct {
	mu           sync.RWMutex
	reservations map[string]*model.Reservation
	byHolder     map[string]string // holder -> active reservation id
	bySlot       map[string]string // slot key -> active reservation id

	watchMu  sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

func NewMemoryReservationRepository() ReservationRepository {
	return &memoryReservationRepository{
		reservations: make(map[string]*model.Reservation),
		byHolder:     make(map[string]string),
		bySlot:       make(map[string]string),
		watchers:     make(map[string]map[chan struct{}]struct{}),
	}
}

func (r *memoryReservationRepository) Create(_ context.Context, res *model.Reservation) error {
	r.mu.Lock()
	if _, exists := r.reservations[res.ID]; exists {
		r.mu.Unlock()
		return reservationserrors.ErrVersionConflict
	}
	if res.IsActive() {
		if _, busy := r.byHolder[holderKey(res)]; busy {
			r.mu.Unlock()
			return reservationserrors.ErrHolderBusy
		}
		if _, busy := r.bySlot[slotKey(res)]; busy {
			r.mu.Unlock()
			return reservationserrors.ErrSlotBusy
		}
		r.byHolder[holderKey(res)] = res.ID
		r.bySlot[slotKey(res)] = res.ID
	}
	res.Version = 1
	r.reservations[res.ID] = cloneReservation(res)
	r.mu.Unlock()

	r.notify(res.HolderID)
	return nil
}

func (r *memoryReservationRepository) FindByID(_ context.Context, id string) (*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.reservations[id]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	return cloneReservation(res), nil
}

func (r *memoryReservationRepository) FindActiveByHolder(_ context.Context, holderID string) (*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHolder[holderID]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	return cloneReservation(r.reservations[id]), nil
}

func (r *memoryReservationRepository) FindActiveBySlot(_ context.Context, serviceName, slotID, timeWindow string) (*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlot[model.SlotKey(serviceName, slotID, timeWindow)]
	if !ok {
		return nil, reservationserrors.ErrNotFound
	}
	return cloneReservation(r.reservations[id]), nil
}

func (r *memoryReservationRepository) ListActiveByService(_ context.Context, serviceName, timeWindow string) ([]*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Reservation
	for _, id := range r.bySlot {
		res := r.reservations[id]
		if res.ServiceName == serviceName && res.TimeWindow == timeWindow {
			out = append(out, cloneReservation(res))
		}
	}
	sortByStart(out)
	return out, nil
}

func (r *memoryReservationRepository) ListByService(_ context.Context, serviceName string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*model.Reservation
	for _, res := range r.reservations {
		if serviceName == "" || res.ServiceName == serviceName {
			all = append(all, res)
		}
	}
	sortByStart(all)

	total := int64(len(all))
	if offset >= total {
		return []*model.Reservation{}, total, nil
	}
	end := total
	if limit > 0 && offset+int64(limit) < total {
		end = offset + int64(limit)
	}

	page := make([]*model.Reservation, 0, end-offset)
	for _, res := range all[offset:end] {
		page = append(page, cloneReservation(res))
	}
	return page, total, nil
}

func (r *memoryReservationRepository) ListQueuedDue(_ context.Context, before time.Time) ([]*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Reservation
	for _, res := range r.reservations {
		if res.Status != model.ReservationQueued || res.AdmissionDeadline == nil {
			continue
		}
		if !before.IsZero() && res.AdmissionDeadline.After(before) {
			continue
		}
		out = append(out, cloneReservation(res))
	}
	sortByStart(out)
	return out, nil
}

func (r *memoryReservationRepository) Update(_ context.Context, res *model.Reservation, expectedVersion int64) error {
	r.mu.Lock()
	current, ok := r.reservations[res.ID]
	if !ok {
		r.mu.Unlock()
		return reservationserrors.ErrNotFound
	}
	if current.Version != expectedVersion {
		r.mu.Unlock()
		return reservationserrors.ErrVersionConflict
	}

	if current.IsActive() && !res.IsActive() {
		r.release(current)
	}
	res.Version = expectedVersion + 1
	r.reservations[res.ID] = cloneReservation(res)
	r.mu.Unlock()

	r.notify(res.HolderID)
	return nil
}

func (r *memoryReservationRepository) Delete(_ context.Context, id string) (*model.Reservation, error) {
	r.mu.Lock()
	current, ok := r.reservations[id]
	if !ok {
		r.mu.Unlock()
		return nil, reservationserrors.ErrNotFound
	}
	if current.IsActive() {
		r.release(current)
	}
	delete(r.reservations, id)
	r.mu.Unlock()

	r.notify(current.HolderID)
	return cloneReservation(current), nil
}

// release drops the exclusivity keys held by res. Caller holds mu.
func (r *memoryReservationRepository) release(res *model.Reservation) {
	if r.byHolder[holderKey(res)] == res.ID {
		delete(r.byHolder, holderKey(res))
	}
	if r.bySlot[slotKey(res)] == res.ID {
		delete(r.bySlot, slotKey(res))
	}
}

func (r *memoryReservationRepository) Watch(ctx context.Context, holderID string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	r.watchMu.Lock()
	if r.watchers[holderID] == nil {
		r.watchers[holderID] = make(map[chan struct{}]struct{})
	}
	r.watchers[holderID][ch] = struct{}{}
	r.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		r.watchMu.Lock()
		delete(r.watchers[holderID], ch)
		if len(r.watchers[holderID]) == 0 {
			delete(r.watchers, holderID)
		}
		close(ch)
		r.watchMu.Unlock()
	}()

	return ch, nil
}

func (r *memoryReservationRepository) notify(holderID string) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()

	for ch := range r.watchers[holderID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func sortByStart(list []*model.Reservation) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartTime.Before(list[j].StartTime)
	})
}

func cloneReservation(res *model.Reservation) *model.Reservation {
	c := *res
	if res.Items != nil {
		c.Items = append([]string(nil), res.Items...)
	}
	c.EndTime = cloneTime(res.EndTime)
	c.AdmissionDeadline = cloneTime(res.AdmissionDeadline)
	c.ClosedAt = cloneTime(res.ClosedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
