package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	reservationserrors "campusq/internal/reservations/errors"
	"campusq/pkg/model"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func booked(id, holder, slot string) *model.Reservation {
	return &model.Reservation{
		ID:          id,
		HolderID:    holder,
		ServiceName: "study-room",
		Kind:        model.KindReservation,
		SlotID:      slot,
		TimeWindow:  "10:00-12:00",
		Status:      model.ReservationBooked,
		StartTime:   t0,
	}
}

func TestMemoryRepository_CreateEnforcesExclusivity(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		second  *model.Reservation
		wantErr error
	}{
		{
			name:    "same holder other slot",
			second:  booked("r2", "H", "room-3"),
			wantErr: reservationserrors.ErrHolderBusy,
		},
		{
			name:    "other holder same slot",
			second:  booked("r2", "K", "room-2"),
			wantErr: reservationserrors.ErrSlotBusy,
		},
		{
			name: "other holder same slot other window",
			second: func() *model.Reservation {
				r := booked("r2", "K", "room-2")
				r.TimeWindow = "12:00-14:00"
				return r
			}(),
		},
		{
			name:    "duplicate id",
			second:  booked("r1", "K", "room-9"),
			wantErr: reservationserrors.ErrVersionConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryReservationRepository()
			first := booked("r1", "H", "room-2")
			if err := repo.Create(ctx, first); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if first.Version != 1 {
				t.Errorf("Version = %d, want 1", first.Version)
			}

			err := repo.Create(ctx, tt.second)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("second Create error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMemoryRepository_UpdateReleasesKeys(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepository()
	res := booked("r1", "H", "room-2")
	if err := repo.Create(ctx, res); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stale := *res
	res.Status = model.ReservationCancelled
	if err := repo.Update(ctx, res, 1); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Version != 2 {
		t.Errorf("Version = %d, want 2", res.Version)
	}

	stale.Status = model.ReservationInUse
	if err := repo.Update(ctx, &stale, 1); !errors.Is(err, reservationserrors.ErrVersionConflict) {
		t.Errorf("stale Update error = %v, want ErrVersionConflict", err)
	}

	if _, err := repo.FindActiveByHolder(ctx, "H"); !errors.Is(err, reservationserrors.ErrNotFound) {
		t.Errorf("holder still active: %v", err)
	}
	if err := repo.Create(ctx, booked("r2", "K", "room-2")); err != nil {
		t.Errorf("slot not released: %v", err)
	}
	if err := repo.Create(ctx, booked("r3", "H", "room-4")); err != nil {
		t.Errorf("holder not released: %v", err)
	}
}

func TestMemoryRepository_Queries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepository()

	a := booked("a", "H1", "room-2")
	b := booked("b", "H2", "room-1")
	b.StartTime = t0.Add(time.Minute)
	deadline := t0.Add(3 * time.Minute)
	q := &model.Reservation{
		ID: "q", HolderID: "H3", ServiceName: "printer", Kind: model.KindQueueEntry,
		SlotID: "q-1", Status: model.ReservationQueued, StartTime: t0, AdmissionDeadline: &deadline,
	}
	for _, res := range []*model.Reservation{a, b, q} {
		if err := repo.Create(ctx, res); err != nil {
			t.Fatalf("Create(%s): %v", res.ID, err)
		}
	}

	active, _ := repo.ListActiveByService(ctx, "study-room", "10:00-12:00")
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "b" {
		t.Errorf("ListActiveByService = %v", ids(active))
	}

	page, total, _ := repo.ListByService(ctx, "study-room", 1, 1)
	if total != 2 || len(page) != 1 || page[0].ID != "b" {
		t.Errorf("ListByService page = %v total %d", ids(page), total)
	}

	if due, _ := repo.ListQueuedDue(ctx, t0.Add(time.Minute)); len(due) != 0 {
		t.Errorf("ListQueuedDue before deadline = %v", ids(due))
	}
	if due, _ := repo.ListQueuedDue(ctx, deadline); len(due) != 1 {
		t.Errorf("ListQueuedDue at deadline = %v", ids(due))
	}
	if all, _ := repo.ListQueuedDue(ctx, time.Time{}); len(all) != 1 {
		t.Errorf("ListQueuedDue zero = %v", ids(all))
	}

	bySlot, err := repo.FindActiveBySlot(ctx, "study-room", "room-1", "10:00-12:00")
	if err != nil || bySlot.ID != "b" {
		t.Errorf("FindActiveBySlot = %v, %v", bySlot, err)
	}

	deleted, err := repo.Delete(ctx, "a")
	if err != nil || deleted.ID != "a" {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	if _, err := repo.FindActiveByHolder(ctx, "H1"); !errors.Is(err, reservationserrors.ErrNotFound) {
		t.Errorf("deleted reservation still active: %v", err)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReservationRepository()
	res := booked("r1", "H", "room-2")
	res.Items = []string{"projector"}
	_ = repo.Create(ctx, res)

	got, _ := repo.FindByID(ctx, "r1")
	got.Items[0] = "mutated"
	got.Status = model.ReservationFinished

	again, _ := repo.FindByID(ctx, "r1")
	if again.Items[0] != "projector" || again.Status != model.ReservationBooked {
		t.Errorf("stored record was mutated through a returned copy: %+v", again)
	}
}

func TestMemoryRepository_Watch(t *testing.T) {
	repo := NewMemoryReservationRepository()
	ctx, cancel := context.WithCancel(context.Background())

	signals, err := repo.Watch(ctx, "H")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	_ = repo.Create(context.Background(), booked("other", "K", "room-9"))
	select {
	case <-signals:
		t.Fatal("signalled for another holder")
	default:
	}

	_ = repo.Create(context.Background(), booked("r1", "H", "room-2"))
	select {
	case <-signals:
	case <-time.After(time.Second):
		t.Fatal("no signal for holder change")
	}

	cancel()
	select {
	case _, open := <-signals:
		if open {
			// A coalesced signal may still be buffered; the next read must see close.
			if _, open = <-signals; open {
				t.Fatal("channel not closed after cancel")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func ids(list []*model.Reservation) []string {
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.ID)
	}
	return out
}
