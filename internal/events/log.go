package events

import (
	"context"

	"campusq/pkg/logger"
)

// LogPublisher writes events to the structured log. Used when Kafka is off.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.With("component", "events")}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	args := []any{
		"event_id", event.ID,
		"type", event.Type,
		"holder_id", event.HolderID,
		"status", event.Status,
	}
	if event.ReservationID != "" {
		args = append(args, "reservation_id", event.ReservationID)
	}
	if event.TicketID != "" {
		args = append(args, "ticket_id", event.TicketID, "ticket_number", event.TicketNumber)
	}
	if event.Alert {
		p.log.Warn("Holder alert", args...)
		return nil
	}
	p.log.Info("Engine event", args...)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
