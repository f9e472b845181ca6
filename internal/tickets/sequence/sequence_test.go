package sequence

import (
	"testing"

	"campusq/pkg/model"
)

func TestIssue_StrictlyIncreasing(t *testing.T) {
	activity := &model.Activity{NextTicketNumber: 1}

	last := 0
	for i := 0; i < 50; i++ {
		n := Issue(activity)
		if n <= last {
			t.Fatalf("number %d not greater than previous %d", n, last)
		}
		last = n
	}
	if activity.NextTicketNumber != 51 {
		t.Errorf("NextTicketNumber = %d, want 51", activity.NextTicketNumber)
	}
}

func TestIssue_ZeroValueStartsAtOne(t *testing.T) {
	activity := &model.Activity{}
	if n := Issue(activity); n != 1 {
		t.Errorf("first number = %d, want 1", n)
	}
}

func TestRetract(t *testing.T) {
	tests := []struct {
		name      string
		next      int
		number    int
		wantOK    bool
		wantAfter int
	}{
		{name: "last issued steps back", next: 8, number: 7, wantOK: true, wantAfter: 7},
		{name: "older number is a no-op", next: 8, number: 5, wantOK: false, wantAfter: 8},
		{name: "future number is a no-op", next: 8, number: 8, wantOK: false, wantAfter: 8},
		{name: "nothing issued", next: 1, number: 0, wantOK: false, wantAfter: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			activity := &model.Activity{NextTicketNumber: tt.next}
			if ok := Retract(activity, tt.number); ok != tt.wantOK {
				t.Errorf("Retract() = %v, want %v", ok, tt.wantOK)
			}
			if activity.NextTicketNumber != tt.wantAfter {
				t.Errorf("NextTicketNumber = %d, want %d", activity.NextTicketNumber, tt.wantAfter)
			}
		})
	}
}

func TestRetract_OnlyOneStep(t *testing.T) {
	activity := &model.Activity{NextTicketNumber: 1}
	Issue(activity) // 1
	Issue(activity) // 2
	third := Issue(activity)

	if !Retract(activity, third) {
		t.Fatal("expected retract of last issued")
	}
	if Retract(activity, third) {
		t.Fatal("a retracted number cannot be retracted again")
	}
	if Peek(activity) != third {
		t.Errorf("Peek() = %d, want %d", Peek(activity), third)
	}
}
