package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campusq/internal/events"
	"campusq/internal/expiry"
	"campusq/internal/tickets/repository"
	"campusq/internal/tickets/validator"
	"campusq/pkg/clock"
	apperrors "campusq/pkg/errors"
	"campusq/pkg/logger"
	"campusq/pkg/model"
)

const noShowWindow = 10 * time.Second

type fixture struct {
	svc      TicketService
	repo     repository.TicketRepository
	clock    *clock.FakeClock
	sched    *expiry.Scheduler
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, repository.NewMemoryTicketRepository())
}

func newFixtureWithRepo(t *testing.T, repo repository.TicketRepository) *fixture {
	t.Helper()
	log := logger.Discard()
	clk := clock.Fake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	sched := expiry.NewScheduler(clk, log)
	t.Cleanup(sched.Stop)
	recorder := events.NewRecorder()

	svc := NewTicketService(
		repo,
		validator.NewTicketValidator(log),
		sched,
		events.NewEmitter(recorder, log, clk.Now),
		clk,
		Options{NoShowWindow: noShowWindow},
		log,
	)
	return &fixture{svc: svc, repo: repo, clock: clk, sched: sched, recorder: recorder}
}

func (f *fixture) activity(t *testing.T, name string) *model.Activity {
	t.Helper()
	a, err := f.svc.CreateActivity(context.Background(), &validator.CreateActivityRequest{Name: name})
	if err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	return a
}

func (f *fixture) join(t *testing.T, activityID, holder string) *model.Ticket {
	t.Helper()
	ticket, err := f.svc.Join(context.Background(), activityID, model.Holder(holder))
	if err != nil {
		t.Fatalf("Join(%s): %v", holder, err)
	}
	return ticket
}

func (f *fixture) callNext(t *testing.T, activityID string) *model.Ticket {
	t.Helper()
	ticket, ok, err := f.svc.CallNext(context.Background(), activityID)
	if err != nil {
		t.Fatalf("CallNext: %v", err)
	}
	if !ok {
		t.Fatal("CallNext: queue unexpectedly empty")
	}
	return ticket
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperrors.HasCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

func TestOpenHouseScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activity := f.activity(t, "Open House")
	if activity.NextTicketNumber != 1 {
		t.Fatalf("NextTicketNumber = %d, want 1", activity.NextTicketNumber)
	}

	a := f.join(t, activity.ID, "A")
	b := f.join(t, activity.ID, "B")
	c := f.join(t, activity.ID, "C")
	for i, ticket := range []*model.Ticket{a, b, c} {
		if ticket.Number != i+1 {
			t.Errorf("ticket %d has number %d", i, ticket.Number)
		}
	}

	first := f.callNext(t, activity.ID)
	if first.ID != a.ID || first.Status != model.TicketCalled {
		t.Fatalf("first call = %+v, want ticket #1 called", first)
	}

	served, err := f.svc.ResolveCall(ctx, a.ID, model.OutcomeArrived)
	if err != nil {
		t.Fatalf("ResolveCall: %v", err)
	}
	if served.Status != model.TicketServed {
		t.Errorf("status = %s, want served", served.Status)
	}

	second := f.callNext(t, activity.ID)
	if second.ID != b.ID || second.Number != 2 {
		t.Errorf("second call = #%d, want #2", second.Number)
	}

	stored, _ := f.svc.GetActivity(ctx, activity.ID)
	if stored.WaitingCount != 1 {
		t.Errorf("WaitingCount = %d, want 1", stored.WaitingCount)
	}
	if n, ok := stored.CurrentTicketNumber(); !ok || n != 2 {
		t.Errorf("CurrentTicketNumber = %d,%v, want 2,true", n, ok)
	}
}

func TestJoin(t *testing.T) {
	ctx := context.Background()

	t.Run("already queued", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Career Fair")
		f.join(t, activity.ID, "A")

		_, err := f.svc.Join(ctx, activity.ID, model.Holder("A"))
		assertCode(t, err, apperrors.CodeAlreadyQueued)
	})

	t.Run("same holder may join different activities", func(t *testing.T) {
		f := newFixture(t)
		first := f.activity(t, "Career Fair")
		second := f.activity(t, "Library Tour")
		f.join(t, first.ID, "A")
		f.join(t, second.ID, "A")
	})

	t.Run("rejoin after terminal ticket", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Career Fair")
		ticket := f.join(t, activity.ID, "A")
		f.callNext(t, activity.ID)
		if _, err := f.svc.ResolveCall(ctx, ticket.ID, model.OutcomeSkip); err != nil {
			t.Fatalf("ResolveCall: %v", err)
		}
		again := f.join(t, activity.ID, "A")
		if again.Number != 2 {
			t.Errorf("Number = %d, want 2", again.Number)
		}
	})

	t.Run("unknown activity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Join(ctx, "missing", model.Holder("A"))
		assertCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("emits joined event", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Career Fair")
		ticket := f.join(t, activity.ID, "A")
		joined := f.recorder.OfType(events.TicketJoined)
		if len(joined) != 1 || joined[0].TicketID != ticket.ID || joined[0].TicketNumber != 1 {
			t.Errorf("joined events = %+v", joined)
		}
	})
}

func TestJoin_ConcurrentSameHolderSingleTicket(t *testing.T) {
	f := newFixture(t)
	activity := f.activity(t, "Open House")

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Join(context.Background(), activity.ID, model.Holder("A"))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !apperrors.HasCode(err, apperrors.CodeAlreadyQueued) && !apperrors.HasCode(err, apperrors.CodeConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successes = %d, want 1", successes)
	}
	waiting, _ := f.svc.ListWaiting(context.Background(), activity.ID)
	if len(waiting) != 1 {
		t.Errorf("waiting = %d, want 1", len(waiting))
	}
}

func TestCallNext(t *testing.T) {
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		ticket, ok, err := f.svc.CallNext(ctx, activity.ID)
		if err != nil || ok || ticket != nil {
			t.Errorf("CallNext = %v, %v, %v; want nil, false, nil", ticket, ok, err)
		}
	})

	t.Run("call already in progress", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		f.join(t, activity.ID, "A")
		f.join(t, activity.ID, "B")
		f.callNext(t, activity.ID)

		_, _, err := f.svc.CallNext(ctx, activity.ID)
		assertCode(t, err, apperrors.CodeInvalidTransition)
	})

	t.Run("skips cancelled tickets", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		b := f.join(t, activity.ID, "B")
		if _, err := f.svc.Cancel(ctx, a.ID, model.Holder("A")); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if got := f.callNext(t, activity.ID); got.ID != b.ID {
			t.Errorf("called #%d, want #%d", got.Number, b.Number)
		}
	})
}

func TestResolveCall(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		outcome model.CallOutcome
		want    model.TicketStatus
	}{
		{model.OutcomeArrived, model.TicketServed},
		{model.OutcomeSkip, model.TicketSkipped},
		{model.OutcomeNoShow, model.TicketTimedOut},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			f := newFixture(t)
			activity := f.activity(t, "Open House")
			ticket := f.join(t, activity.ID, "A")
			f.callNext(t, activity.ID)

			resolved, err := f.svc.ResolveCall(ctx, ticket.ID, tt.outcome)
			if err != nil {
				t.Fatalf("ResolveCall: %v", err)
			}
			if resolved.Status != tt.want || resolved.ResolvedAt == nil {
				t.Errorf("resolved = %+v", resolved)
			}
			stored, _ := f.svc.GetActivity(ctx, activity.ID)
			if !stored.CurrentCall.IsIdle() {
				t.Errorf("current call not cleared: %+v", stored.CurrentCall)
			}
		})
	}

	t.Run("waiting ticket cannot be resolved", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		ticket := f.join(t, activity.ID, "A")
		_, err := f.svc.ResolveCall(ctx, ticket.ID, model.OutcomeArrived)
		assertCode(t, err, apperrors.CodeInvalidTransition)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ResolveCall(ctx, "x", model.CallOutcome("teleported"))
		assertCode(t, err, apperrors.CodeInvalidInput)
	})

	t.Run("terminal ticket cannot be resolved twice", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		ticket := f.join(t, activity.ID, "A")
		f.callNext(t, activity.ID)
		if _, err := f.svc.ResolveCall(ctx, ticket.ID, model.OutcomeArrived); err != nil {
			t.Fatalf("ResolveCall: %v", err)
		}
		_, err := f.svc.ResolveCall(ctx, ticket.ID, model.OutcomeSkip)
		assertCode(t, err, apperrors.CodeInvalidTransition)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("last issued number is retracted", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		f.join(t, activity.ID, "A")
		b := f.join(t, activity.ID, "B")

		if _, err := f.svc.Cancel(ctx, b.ID, model.Holder("B")); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		stored, _ := f.svc.GetActivity(ctx, activity.ID)
		if stored.NextTicketNumber != 2 {
			t.Errorf("NextTicketNumber = %d, want 2", stored.NextTicketNumber)
		}
		if stored.WaitingCount != 1 {
			t.Errorf("WaitingCount = %d, want 1", stored.WaitingCount)
		}
		c := f.join(t, activity.ID, "C")
		if c.Number != 2 {
			t.Errorf("reissued number = %d, want 2", c.Number)
		}
	})

	t.Run("earlier number is not retracted", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		f.join(t, activity.ID, "B")

		if _, err := f.svc.Cancel(ctx, a.ID, model.Holder("A")); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		stored, _ := f.svc.GetActivity(ctx, activity.ID)
		if stored.NextTicketNumber != 3 {
			t.Errorf("NextTicketNumber = %d, want 3", stored.NextTicketNumber)
		}
	})

	t.Run("other holder is forbidden", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		_, err := f.svc.Cancel(ctx, a.ID, model.Holder("B"))
		assertCode(t, err, apperrors.CodeForbidden)
	})

	t.Run("admin may cancel", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		if _, err := f.svc.Cancel(ctx, a.ID, model.Admin("staff")); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
	})

	t.Run("called ticket cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		f.callNext(t, activity.ID)
		_, err := f.svc.Cancel(ctx, a.ID, model.Holder("A"))
		assertCode(t, err, apperrors.CodeInvalidTransition)
	})

	t.Run("second cancel is an invalid transition", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		if _, err := f.svc.Cancel(ctx, a.ID, model.Holder("A")); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		_, err := f.svc.Cancel(ctx, a.ID, model.Holder("A"))
		assertCode(t, err, apperrors.CodeInvalidTransition)
	})
}

func TestPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activity := f.activity(t, "Open House")
	a := f.join(t, activity.ID, "A")
	b := f.join(t, activity.ID, "B")
	c := f.join(t, activity.ID, "C")

	for want, ticket := range []*model.Ticket{a, b, c} {
		got, err := f.svc.Position(ctx, ticket.ID)
		if err != nil {
			t.Fatalf("Position: %v", err)
		}
		if got != want {
			t.Errorf("Position(#%d) = %d, want %d", ticket.Number, got, want)
		}
	}

	if _, err := f.svc.Cancel(ctx, a.ID, model.Holder("A")); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got, _ := f.svc.Position(ctx, c.ID); got != 1 {
		t.Errorf("Position after cancel = %d, want 1", got)
	}

	_, err := f.svc.Position(ctx, a.ID)
	assertCode(t, err, apperrors.CodeInvalidInput)
}

func TestNoShowWindow(t *testing.T) {
	ctx := context.Background()

	t.Run("expires after the window", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		f.join(t, activity.ID, "B")
		f.callNext(t, activity.ID)

		marked, err := f.svc.MarkAbsent(ctx, a.ID)
		if err != nil {
			t.Fatalf("MarkAbsent: %v", err)
		}
		if marked.NoShowDeadline == nil || !marked.NoShowDeadline.Equal(f.clock.Now().Add(noShowWindow)) {
			t.Fatalf("deadline = %v", marked.NoShowDeadline)
		}

		f.clock.Advance(noShowWindow - time.Second)
		if got, _ := f.svc.GetTicket(ctx, a.ID); got.Status != model.TicketCalled {
			t.Fatalf("status before deadline = %s", got.Status)
		}

		f.clock.Advance(time.Second)
		got, _ := f.svc.GetTicket(ctx, a.ID)
		if got.Status != model.TicketTimedOut {
			t.Fatalf("status after deadline = %s, want timed-out", got.Status)
		}
		stored, _ := f.svc.GetActivity(ctx, activity.ID)
		if !stored.CurrentCall.IsIdle() {
			t.Error("current call not released")
		}
		if f.sched.Pending() != 0 {
			t.Errorf("pending timers = %d", f.sched.Pending())
		}
	})

	t.Run("abort keeps the ticket called", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		f.callNext(t, activity.ID)
		if _, err := f.svc.MarkAbsent(ctx, a.ID); err != nil {
			t.Fatalf("MarkAbsent: %v", err)
		}

		aborted, err := f.svc.AbortAbsent(ctx, a.ID)
		if err != nil {
			t.Fatalf("AbortAbsent: %v", err)
		}
		if aborted.NoShowDeadline != nil {
			t.Error("deadline not cleared")
		}

		f.clock.Advance(2 * noShowWindow)
		if got, _ := f.svc.GetTicket(ctx, a.ID); got.Status != model.TicketCalled {
			t.Errorf("status = %s, want called", got.Status)
		}
	})

	t.Run("resolving disarms the timer", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		f.callNext(t, activity.ID)
		if _, err := f.svc.MarkAbsent(ctx, a.ID); err != nil {
			t.Fatalf("MarkAbsent: %v", err)
		}
		if _, err := f.svc.ResolveCall(ctx, a.ID, model.OutcomeArrived); err != nil {
			t.Fatalf("ResolveCall: %v", err)
		}
		if f.sched.Pending() != 0 {
			t.Errorf("pending timers = %d", f.sched.Pending())
		}
		f.clock.Advance(2 * noShowWindow)
		if got, _ := f.svc.GetTicket(ctx, a.ID); got.Status != model.TicketServed {
			t.Errorf("status = %s, want served", got.Status)
		}
	})

	t.Run("mark absent twice keeps the first deadline", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		f.callNext(t, activity.ID)
		first, _ := f.svc.MarkAbsent(ctx, a.ID)
		f.clock.Advance(3 * time.Second)
		second, err := f.svc.MarkAbsent(ctx, a.ID)
		if err != nil {
			t.Fatalf("MarkAbsent: %v", err)
		}
		if !second.NoShowDeadline.Equal(*first.NoShowDeadline) {
			t.Errorf("deadline moved from %v to %v", first.NoShowDeadline, second.NoShowDeadline)
		}
	})

	t.Run("abort without window", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		f.callNext(t, activity.ID)
		_, err := f.svc.AbortAbsent(ctx, a.ID)
		assertCode(t, err, apperrors.CodeInvalidInput)
	})

	t.Run("waiting ticket cannot be marked absent", func(t *testing.T) {
		f := newFixture(t)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		_, err := f.svc.MarkAbsent(ctx, a.ID)
		assertCode(t, err, apperrors.CodeInvalidTransition)
	})
}

func TestRecoverAndSweep(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()

	before := newFixtureWithRepo(t, repo)
	activity := before.activity(t, "Open House")
	a := before.join(t, activity.ID, "A")
	before.callNext(t, activity.ID)
	if _, err := before.svc.MarkAbsent(ctx, a.ID); err != nil {
		t.Fatalf("MarkAbsent: %v", err)
	}
	// Simulate a restart: the scheduler holding the timer goes away.
	before.sched.Stop()

	after := newFixtureWithRepo(t, repo)
	count, err := after.svc.Recover(ctx)
	if err != nil || count != 1 {
		t.Fatalf("Recover = %d, %v; want 1, nil", count, err)
	}
	if after.sched.Pending() != 1 {
		t.Fatalf("pending timers = %d, want 1", after.sched.Pending())
	}

	// The recovered timer is dropped to exercise the sweeper path.
	after.sched.Cancel(noShowKey(a.ID))
	after.clock.Advance(time.Hour)

	swept, err := after.svc.Sweep(ctx)
	if err != nil || swept != 1 {
		t.Fatalf("Sweep = %d, %v; want 1, nil", swept, err)
	}
	if got, _ := after.svc.GetTicket(ctx, a.ID); got.Status != model.TicketTimedOut {
		t.Errorf("status = %s, want timed-out", got.Status)
	}
	if again, _ := after.svc.Sweep(ctx); again != 0 {
		t.Errorf("second sweep = %d, want 0", again)
	}
}

func TestDeleteActivity_CascadesAndDisarms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	activity := f.activity(t, "Open House")
	a := f.join(t, activity.ID, "A")
	f.join(t, activity.ID, "B")
	f.callNext(t, activity.ID)
	if _, err := f.svc.MarkAbsent(ctx, a.ID); err != nil {
		t.Fatalf("MarkAbsent: %v", err)
	}

	if err := f.svc.DeleteActivity(ctx, activity.ID); err != nil {
		t.Fatalf("DeleteActivity: %v", err)
	}
	if f.sched.Pending() != 0 {
		t.Errorf("pending timers = %d", f.sched.Pending())
	}
	_, err := f.svc.GetTicket(ctx, a.ID)
	assertCode(t, err, apperrors.CodeNotFound)

	err = f.svc.DeleteActivity(ctx, activity.ID)
	assertCode(t, err, apperrors.CodeNotFound)
}

// racingRepository runs interleave once, right after the first ListWaiting
// read, so the caller continues with a stale view.
type racingRepository struct {
	repository.TicketRepository
	fired      atomic.Bool
	interleave func()
}

func (r *racingRepository) ListWaiting(ctx context.Context, activityID string) ([]*model.Ticket, error) {
	waiting, err := r.TicketRepository.ListWaiting(ctx, activityID)
	if r.interleave != nil && r.fired.CompareAndSwap(false, true) {
		r.interleave()
	}
	return waiting, err
}

func TestCallNext_Races(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel wins over call next", func(t *testing.T) {
		repo := &racingRepository{TicketRepository: repository.NewMemoryTicketRepository()}
		f := newFixtureWithRepo(t, repo)
		activity := f.activity(t, "Open House")
		a := f.join(t, activity.ID, "A")
		f.join(t, activity.ID, "B")

		var cancelErr error
		repo.interleave = func() {
			_, cancelErr = f.svc.Cancel(ctx, a.ID, model.Holder("A"))
		}

		_, _, err := f.svc.CallNext(ctx, activity.ID)
		if cancelErr != nil {
			t.Fatalf("Cancel: %v", cancelErr)
		}
		assertCode(t, err, apperrors.CodeConflict)

		got, _ := f.svc.GetTicket(ctx, a.ID)
		if got.Status != model.TicketCancelled {
			t.Errorf("status = %s, want cancelled", got.Status)
		}
		stored, _ := f.svc.GetActivity(ctx, activity.ID)
		if !stored.CurrentCall.IsIdle() {
			t.Errorf("current call = %+v, want idle", stored.CurrentCall)
		}

		// A retry sees the fresh queue.
		next := f.callNext(t, activity.ID)
		if next.Number != 2 {
			t.Errorf("retry called #%d, want #2", next.Number)
		}
	})

	t.Run("two concurrent calls produce one winner", func(t *testing.T) {
		repo := &racingRepository{TicketRepository: repository.NewMemoryTicketRepository()}
		f := newFixtureWithRepo(t, repo)
		activity := f.activity(t, "Open House")
		f.join(t, activity.ID, "A")
		f.join(t, activity.ID, "B")

		var innerErr error
		var inner *model.Ticket
		repo.interleave = func() {
			inner, _, innerErr = f.svc.CallNext(ctx, activity.ID)
		}

		_, _, err := f.svc.CallNext(ctx, activity.ID)
		if innerErr != nil {
			t.Fatalf("inner CallNext: %v", innerErr)
		}
		assertCode(t, err, apperrors.CodeConflict)
		if inner.Number != 1 {
			t.Errorf("winner called #%d, want #1", inner.Number)
		}

		tickets, _ := f.svc.ListTickets(ctx, activity.ID)
		called := 0
		for _, ticket := range tickets {
			if ticket.Status == model.TicketCalled {
				called++
			}
		}
		if called != 1 {
			t.Errorf("called tickets = %d, want 1", called)
		}
	})
}
