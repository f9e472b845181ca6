package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	ticketserrors "campusq/internal/tickets/errors"
	"campusq/pkg/model"
)

type memoryTicketRepository struct {
	mu         sync.RWMutex
	activities map[string]*model.Activity
	tickets    map[string]*model.Ticket
	active     map[string]string // activity|holder -> ticket id
}

func NewMemoryTicketRepository() TicketRepository {
	return &memoryTicketRepository{
		activities: make(map[string]*model.Activity),
		tickets:    make(map[string]*model.Ticket),
		active:     make(map[string]string),
	}
}

func (r *memoryTicketRepository) CreateActivity(_ context.Context, activity *model.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.activities[activity.ID]; exists {
		return ticketserrors.ErrVersionConflict
	}
	activity.Version = 1
	r.activities[activity.ID] = cloneActivity(activity)
	return nil
}

func (r *memoryTicketRepository) FindActivity(_ context.Context, id string) (*model.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[id]
	if !ok {
		return nil, ticketserrors.ErrNotFound
	}
	return cloneActivity(activity), nil
}

func (r *memoryTicketRepository) ListActivities(_ context.Context) ([]*model.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activities := make([]*model.Activity, 0, len(r.activities))
	for _, a := range r.activities {
		activities = append(activities, cloneActivity(a))
	}
	sort.Slice(activities, func(i, j int) bool {
		return activities[i].CreatedAt.Before(activities[j].CreatedAt)
	})
	return activities, nil
}

func (r *memoryTicketRepository) DeleteActivity(_ context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.activities[id]; !ok {
		return nil, ticketserrors.ErrNotFound
	}

	var removed []string
	for ticketID, t := range r.tickets {
		if t.ActivityID != id {
			continue
		}
		delete(r.tickets, ticketID)
		delete(r.active, activeKey(t.ActivityID, t.HolderID))
		removed = append(removed, ticketID)
	}
	delete(r.activities, id)
	sort.Strings(removed)
	return removed, nil
}

func (r *memoryTicketRepository) FindTicket(_ context.Context, id string) (*model.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, ticketserrors.ErrNotFound
	}
	return cloneTicket(t), nil
}

func (r *memoryTicketRepository) FindActiveTicket(_ context.Context, activityID, holderID string) (*model.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticketID, ok := r.active[activeKey(activityID, holderID)]
	if !ok {
		return nil, ticketserrors.ErrNotFound
	}
	return cloneTicket(r.tickets[ticketID]), nil
}

func (r *memoryTicketRepository) ListWaiting(ctx context.Context, activityID string) ([]*model.Ticket, error) {
	return r.list(func(t *model.Ticket) bool {
		return t.ActivityID == activityID && t.Status == model.TicketWaiting
	}), nil
}

func (r *memoryTicketRepository) ListTickets(ctx context.Context, activityID string) ([]*model.Ticket, error) {
	return r.list(func(t *model.Ticket) bool {
		return t.ActivityID == activityID
	}), nil
}

func (r *memoryTicketRepository) ListNoShowPending(ctx context.Context) ([]*model.Ticket, error) {
	return r.list(func(t *model.Ticket) bool {
		return t.Status == model.TicketCalled && t.NoShowDeadline != nil
	}), nil
}

func (r *memoryTicketRepository) list(match func(*model.Ticket) bool) []*model.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var tickets []*model.Ticket
	for _, t := range r.tickets {
		if match(t) {
			tickets = append(tickets, cloneTicket(t))
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].ActivityID != tickets[j].ActivityID {
			return tickets[i].ActivityID < tickets[j].ActivityID
		}
		return tickets[i].Number < tickets[j].Number
	})
	return tickets
}

func (r *memoryTicketRepository) Apply(_ context.Context, change Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a := change.Activity; a != nil {
		current, ok := r.activities[a.ID]
		if !ok {
			return ticketserrors.ErrNotFound
		}
		if current.Version != change.ExpectedActivityVersion {
			return ticketserrors.ErrVersionConflict
		}
	}

	if t := change.Ticket; t != nil {
		current, exists := r.tickets[t.ID]
		if change.ExpectedTicketVersion == 0 {
			if exists {
				return ticketserrors.ErrVersionConflict
			}
			if _, taken := r.active[activeKey(t.ActivityID, t.HolderID)]; taken && t.IsActive() {
				return ticketserrors.ErrHolderQueued
			}
		} else {
			if !exists {
				return ticketserrors.ErrNotFound
			}
			if current.Version != change.ExpectedTicketVersion {
				return ticketserrors.ErrVersionConflict
			}
		}
	}

	// All preconditions hold; commit both sides.
	if a := change.Activity; a != nil {
		a.Version = change.ExpectedActivityVersion + 1
		r.activities[a.ID] = cloneActivity(a)
	}
	if t := change.Ticket; t != nil {
		t.Version = change.ExpectedTicketVersion + 1
		r.tickets[t.ID] = cloneTicket(t)
		key := activeKey(t.ActivityID, t.HolderID)
		if t.IsActive() {
			r.active[key] = t.ID
		} else if r.active[key] == t.ID {
			delete(r.active, key)
		}
	}
	return nil
}

func cloneActivity(a *model.Activity) *model.Activity {
	c := *a
	if a.CurrentCall.CalledAt != nil {
		at := *a.CurrentCall.CalledAt
		c.CurrentCall.CalledAt = &at
	}
	return &c
}

func cloneTicket(t *model.Ticket) *model.Ticket {
	c := *t
	c.CalledAt = cloneTime(t.CalledAt)
	c.ResolvedAt = cloneTime(t.ResolvedAt)
	c.NoShowDeadline = cloneTime(t.NoShowDeadline)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
