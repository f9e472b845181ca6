package kafka

import (
	"errors"
	"testing"
)

func TestMessageBuilder_Build(t *testing.T) {
	msg := NewMessage().
		WithKey("holder-1").
		WithValue(map[string]string{"type": "ticket.called"}).
		WithEventType("ticket.called").
		WithSource("campusq-engine").
		Build()

	if msg.Key != "holder-1" {
		t.Errorf("key = %q", msg.Key)
	}
	if msg.GetEventID() == "" {
		t.Error("Build should assign an event id")
	}
	if msg.Headers[HeaderTimestamp] == "" {
		t.Error("Build should stamp a timestamp header")
	}

	var payload map[string]string
	if err := msg.DecodeValue(&payload); err != nil || payload["type"] != "ticket.called" {
		t.Errorf("DecodeValue = %v, %v", payload, err)
	}
}

func TestMessage_RetryCount(t *testing.T) {
	msg := Message{Headers: map[string]string{}}
	for i := 1; i <= 12; i++ {
		msg.IncrementRetryCount()
		if got := msg.GetRetryCount(); got != i {
			t.Fatalf("after %d increments GetRetryCount() = %d", i, got)
		}
	}

	var bare Message
	bare.IncrementRetryCount()
	if bare.GetRetryCount() != 1 {
		t.Error("IncrementRetryCount should initialise headers")
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		retries int
		want    bool
	}{
		{"nil", nil, 0, false},
		{"transient", NewTransientError("broker", errors.New("boom")), 0, true},
		{"transient by message", errors.New("dial tcp: I/O Timeout"), 1, true},
		{"retries exhausted", errors.New("connection refused"), 3, false},
		{"permanent", NewPermanentError("deserialization failed", errors.New("bad json")), 0, false},
		{"unknown defaults to permanent", errors.New("weird"), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err, tt.retries, 3); got != tt.want {
				t.Errorf("ShouldRetry() = %v, want %v", got, tt.want)
			}
		})
	}
}
