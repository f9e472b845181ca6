package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"campusq/pkg/kafka"
	"campusq/pkg/logger"
)

type fakeProducer struct {
	published []kafka.Message
	err       error
}

func (f *fakeProducer) Publish(_ context.Context, msg kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaPublisher_RoundTrip(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewKafkaPublisher(producer)

	in := Event{
		ID:            "ev-1",
		Type:          ReservationAdmissionExpired,
		HolderID:      "H",
		ReservationID: "r1",
		Status:        "cancelled",
		Reason:        "admission_expired",
		Alert:         true,
		OccurredAt:    time.Date(2026, 3, 2, 10, 3, 0, 0, time.UTC),
	}
	if err := pub.Publish(context.Background(), in); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(producer.published) != 1 {
		t.Fatalf("published %d messages", len(producer.published))
	}

	msg := producer.published[0]
	if msg.Key != "H" {
		t.Errorf("key = %q, want holder id", msg.Key)
	}
	if msg.GetEventType() != string(ReservationAdmissionExpired) {
		t.Errorf("event type header = %q", msg.GetEventType())
	}
	if msg.GetEventID() != "ev-1" {
		t.Errorf("event id header = %q", msg.GetEventID())
	}
	if msg.Headers[kafka.HeaderAlert] != "true" {
		t.Errorf("alert header missing")
	}

	out, err := FromMessage(msg)
	if err != nil {
		t.Fatalf("FromMessage: %v", err)
	}
	if out.ReservationID != "r1" || !out.Alert || !out.OccurredAt.Equal(in.OccurredAt) {
		t.Errorf("decoded = %+v", out)
	}
}

func TestFromMessage_BadPayloadIsPermanent(t *testing.T) {
	_, err := FromMessage(kafka.Message{Value: []byte("{not json")})
	if kafka.ClassifyError(err) != kafka.ErrorTypePermanent {
		t.Fatalf("expected permanent error, got %v", err)
	}
}

func TestPartitionKey(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{Event{HolderID: "H", ActivityID: "A"}, "H"},
		{Event{ActivityID: "A", ReservationID: "R"}, "A"},
		{Event{ReservationID: "R"}, "R"},
	}
	for _, tt := range tests {
		if got := tt.event.PartitionKey(); got != tt.want {
			t.Errorf("PartitionKey(%+v) = %q, want %q", tt.event, got, tt.want)
		}
	}
}

func TestEmitter_StampsAndSwallowsErrors(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := NewRecorder()
	emitter := NewEmitter(rec, logger.Discard(), func() time.Time { return now })

	emitter.Emit(context.Background(), Event{Type: TicketJoined, HolderID: "A"})

	got := rec.Events()
	if len(got) != 1 {
		t.Fatalf("recorded %d events", len(got))
	}
	if got[0].ID == "" || !got[0].OccurredAt.Equal(now) {
		t.Errorf("event not stamped: %+v", got[0])
	}

	failing := NewEmitter(NewKafkaPublisher(&fakeProducer{err: errors.New("broker down")}), logger.Discard(), time.Now)
	failing.Emit(context.Background(), Event{Type: TicketJoined, HolderID: "A"})

	var nilEmitter *Emitter
	nilEmitter.Emit(context.Background(), Event{Type: TicketJoined})
}
