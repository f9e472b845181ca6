package repository

import (
	"context"

	"campusq/pkg/model"
)

// Change is one atomic write over an activity and one of its tickets.
// Either side may be nil. An expected version of zero on the ticket side
// means insert. On success the stored versions are bumped and written back
// into the passed records.
type Change struct {
	Activity                *model.Activity
	ExpectedActivityVersion int64

	Ticket                *model.Ticket
	ExpectedTicketVersion int64
}

type TicketRepository interface {
	CreateActivity(ctx context.Context, activity *model.Activity) error
	FindActivity(ctx context.Context, id string) (*model.Activity, error)
	ListActivities(ctx context.Context) ([]*model.Activity, error)
	// DeleteActivity removes the activity and every ticket it owns, returning
	// the ids of the removed tickets.
	DeleteActivity(ctx context.Context, id string) ([]string, error)

	FindTicket(ctx context.Context, id string) (*model.Ticket, error)
	FindActiveTicket(ctx context.Context, activityID, holderID string) (*model.Ticket, error)
	// ListWaiting returns waiting tickets ordered by number ascending.
	ListWaiting(ctx context.Context, activityID string) ([]*model.Ticket, error)
	ListTickets(ctx context.Context, activityID string) ([]*model.Ticket, error)
	// ListNoShowPending returns called tickets with a running no-show window.
	ListNoShowPending(ctx context.Context) ([]*model.Ticket, error)

	Apply(ctx context.Context, change Change) error
}

func activeKey(activityID, holderID string) string {
	return activityID + "|" + holderID
}
