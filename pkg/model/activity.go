package model

import "time"

type CallState string

const (
	CallIdle    CallState = "idle"
	CallCalling CallState = "calling"
)

// CurrentCall is either idle or names the single ticket currently called
// for an activity. The zero value is treated as idle.
type CurrentCall struct {
	State    CallState  `json:"state" bson:"state"`
	TicketID string     `json:"ticket_id,omitempty" bson:"ticket_id,omitempty"`
	Number   int        `json:"number,omitempty" bson:"number,omitempty"`
	CalledAt *time.Time `json:"called_at,omitempty" bson:"called_at,omitempty"`
}

func IdleCall() CurrentCall {
	return CurrentCall{State: CallIdle}
}

func CallingTicket(t *Ticket, at time.Time) CurrentCall {
	calledAt := at
	return CurrentCall{
		State:    CallCalling,
		TicketID: t.ID,
		Number:   t.Number,
		CalledAt: &calledAt,
	}
}

func (c CurrentCall) IsIdle() bool {
	return c.State != CallCalling
}

func (c CurrentCall) Is(ticketID string) bool {
	return c.State == CallCalling && c.TicketID == ticketID
}

type Activity struct {
	ID               string      `json:"id" bson:"_id"`
	Name             string      `json:"name" bson:"name" validate:"required,min=2,max=100"`
	NextTicketNumber int         `json:"next_ticket_number" bson:"next_ticket_number"`
	CurrentCall      CurrentCall `json:"current_call" bson:"current_call"`
	WaitingCount     int         `json:"waiting_count" bson:"waiting_count"`
	Version          int64       `json:"version" bson:"version"`
	CreatedAt        time.Time   `json:"created_at" bson:"created_at"`
}

// CurrentTicketNumber reports the number last called, if a call is active.
func (a *Activity) CurrentTicketNumber() (int, bool) {
	if a.CurrentCall.IsIdle() {
		return 0, false
	}
	return a.CurrentCall.Number, true
}
