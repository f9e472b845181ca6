package events

import (
	"context"
	"time"

	"campusq/pkg/logger"

	"github.com/google/uuid"
)

// Emitter stamps and publishes events, logging rather than returning
// publish failures since the state change they describe already committed.
type Emitter struct {
	publisher Publisher
	log       *logger.Logger
	now       func() time.Time
}

func NewEmitter(publisher Publisher, log *logger.Logger, now func() time.Time) *Emitter {
	return &Emitter{publisher: publisher, log: log, now: now}
}

func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.publisher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.log.Error("Failed to publish event",
			"event_id", event.ID,
			"type", event.Type,
			"error", err,
		)
	}
}
