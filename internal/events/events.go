// Package events carries engine state changes and holder alerts out of the
// process. Publishing happens after the state change has committed and is
// best effort: a failed publish is logged, never rolled back.
package events

import (
	"context"
	"time"
)

type Type string

const (
	ActivityCreated Type = "activity.created"
	ActivityDeleted Type = "activity.deleted"

	TicketJoined        Type = "ticket.joined"
	TicketCalled        Type = "ticket.called"
	TicketResolved      Type = "ticket.resolved"
	TicketCancelled     Type = "ticket.cancelled"
	TicketNoShowStarted Type = "ticket.no_show_started"
	TicketNoShowAborted Type = "ticket.no_show_aborted"

	ReservationCreated          Type = "reservation.created"
	ReservationCheckedIn        Type = "reservation.checked_in"
	ReservationExtended         Type = "reservation.extended"
	ReservationFinished         Type = "reservation.finished"
	ReservationCancelled        Type = "reservation.cancelled"
	ReservationGraceApplied     Type = "reservation.grace_applied"
	ReservationDeleted          Type = "reservation.deleted"
	ReservationAdmissionExpired Type = "reservation.admission_expired"
)

// Event is the wire payload. Alert marks events the holder must be told
// about directly, such as a queue slot lost to the admission deadline.
type Event struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	HolderID      string    `json:"holder_id,omitempty"`
	ActivityID    string    `json:"activity_id,omitempty"`
	TicketID      string    `json:"ticket_id,omitempty"`
	TicketNumber  int       `json:"ticket_number,omitempty"`
	ReservationID string    `json:"reservation_id,omitempty"`
	ServiceName   string    `json:"service_name,omitempty"`
	SlotID        string    `json:"slot_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Alert         bool      `json:"alert,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PartitionKey keeps every event about one holder on one partition.
func (e Event) PartitionKey() string {
	switch {
	case e.HolderID != "":
		return e.HolderID
	case e.ActivityID != "":
		return e.ActivityID
	default:
		return e.ReservationID
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
