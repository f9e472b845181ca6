// Package alerts delivers holder alerts read off the events topic. Delivery
// is a structured log line today; the Sender seam is where a push or
// messaging integration plugs in.
package alerts

import (
	"context"

	"campusq/internal/events"
	"campusq/pkg/kafka"
	"campusq/pkg/logger"
)

// Sender delivers one alert to its holder.
type Sender interface {
	Send(ctx context.Context, event events.Event) error
}

type logSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) Sender {
	return &logSender{log: log.With("component", "holder-alerts")}
}

func (s *logSender) Send(_ context.Context, event events.Event) error {
	s.log.Info("Holder alert",
		"holder_id", event.HolderID,
		"event_type", event.Type,
		"reason", event.Reason,
		"ticket_id", event.TicketID,
		"reservation_id", event.ReservationID,
		"occurred_at", event.OccurredAt,
	)
	return nil
}

type Handler struct {
	sender Sender
	log    *logger.Logger
}

func NewHandler(sender Sender, log *logger.Logger) *Handler {
	return &Handler{sender: sender, log: log}
}

// Handle is a kafka.MessageHandler. Events without the alert header are
// skipped before decoding.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	if !msg.IsAlert() {
		return nil
	}

	event, err := events.FromMessage(msg)
	if err != nil {
		return err
	}
	if event.HolderID == "" {
		h.log.Warn("Alert without holder dropped", "event_id", event.ID, "event_type", event.Type)
		return nil
	}

	if err := h.sender.Send(ctx, event); err != nil {
		return kafka.NewTransientError("alert delivery failed", err)
	}
	return nil
}
