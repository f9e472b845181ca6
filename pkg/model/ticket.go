package model

import "time"

type TicketStatus string

const (
	TicketWaiting   TicketStatus = "waiting"
	TicketCalled    TicketStatus = "called"
	TicketServed    TicketStatus = "served"
	TicketSkipped   TicketStatus = "skipped"
	TicketTimedOut  TicketStatus = "timed-out"
	TicketCancelled TicketStatus = "cancelled"
)

type CallOutcome string

const (
	OutcomeArrived CallOutcome = "arrived"
	OutcomeNoShow  CallOutcome = "no-show-timeout"
	OutcomeSkip    CallOutcome = "skip"
)

type Ticket struct {
	ID             string       `json:"id" bson:"_id"`
	ActivityID     string       `json:"activity_id" bson:"activity_id"`
	HolderID       string       `json:"holder_id" bson:"holder_id"`
	Number         int          `json:"number" bson:"number"`
	Status         TicketStatus `json:"status" bson:"status"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at"`
	CalledAt       *time.Time   `json:"called_at,omitempty" bson:"called_at,omitempty"`
	ResolvedAt     *time.Time   `json:"resolved_at,omitempty" bson:"resolved_at,omitempty"`
	NoShowDeadline *time.Time   `json:"no_show_deadline,omitempty" bson:"no_show_deadline,omitempty"`
	Version        int64        `json:"version" bson:"version"`
}

// IsActive reports whether the ticket still holds a place in its queue.
func (t *Ticket) IsActive() bool {
	return t.Status == TicketWaiting || t.Status == TicketCalled
}

func (t *Ticket) IsTerminal() bool {
	return !t.IsActive()
}
