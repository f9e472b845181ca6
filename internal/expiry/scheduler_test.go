package expiry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campusq/pkg/clock"
	"campusq/pkg/logger"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestScheduler() (*Scheduler, *clock.FakeClock) {
	clk := clock.Fake(t0)
	return NewScheduler(clk, logger.Discard()), clk
}

func TestSchedule_FiresAtDeadline(t *testing.T) {
	s, clk := newTestScheduler()
	defer s.Stop()

	var fired int32
	s.Schedule("reservation:r1", t0.Add(180*time.Second), func(context.Context) {
		atomic.AddInt32(&fired, 1)
	})

	clk.Advance(179 * time.Second)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("fired early")
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", s.Pending())
	}

	clk.Advance(time.Second)
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatal("did not fire at deadline")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after fire", s.Pending())
	}
}

func TestCancel_PreventsFire(t *testing.T) {
	s, clk := newTestScheduler()
	defer s.Stop()

	fired := false
	s.Schedule("k", t0.Add(time.Minute), func(context.Context) { fired = true })

	if !s.Cancel("k") {
		t.Fatal("Cancel() should report a pending registration")
	}
	if s.Cancel("k") {
		t.Fatal("second Cancel() should report nothing pending")
	}
	clk.Advance(time.Hour)
	if fired {
		t.Fatal("cancelled timer fired")
	}
}

func TestSchedule_ReplacesExisting(t *testing.T) {
	s, clk := newTestScheduler()
	defer s.Stop()

	var calls []string
	s.Schedule("k", t0.Add(time.Minute), func(context.Context) { calls = append(calls, "old") })
	s.Schedule("k", t0.Add(2*time.Minute), func(context.Context) { calls = append(calls, "new") })

	if d, ok := s.Deadline("k"); !ok || !d.Equal(t0.Add(2*time.Minute)) {
		t.Fatalf("Deadline() = %v, %v", d, ok)
	}

	clk.Advance(3 * time.Minute)
	if len(calls) != 1 || calls[0] != "new" {
		t.Fatalf("calls = %v", calls)
	}
}

func TestSchedule_PastDeadlineFiresOnNextTick(t *testing.T) {
	s, clk := newTestScheduler()
	defer s.Stop()

	fired := false
	s.Schedule("k", t0.Add(-time.Minute), func(context.Context) { fired = true })
	clk.Advance(time.Millisecond)
	if !fired {
		t.Fatal("overdue registration did not fire")
	}
}

func TestCancel_WaitsForInflightCallback(t *testing.T) {
	s := NewScheduler(clock.Real(), logger.Discard())
	defer s.Stop()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	s.Schedule("k", time.Now(), func(context.Context) {
		close(started)
		<-release
		finished.Store(true)
	})

	<-started
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Cancel("k")
		if !finished.Load() {
			t.Error("Cancel returned while the callback was still running")
		}
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()
}

func TestStop_DisarmsAndCancelsContext(t *testing.T) {
	s, clk := newTestScheduler()

	fired := false
	s.Schedule("k", t0.Add(time.Second), func(context.Context) { fired = true })
	s.Stop()

	clk.Advance(time.Minute)
	if fired {
		t.Fatal("timer fired after Stop")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after Stop", s.Pending())
	}

	s.Schedule("late", t0.Add(2*time.Minute), func(context.Context) { fired = true })
	if s.Pending() != 0 {
		t.Error("Schedule after Stop should be ignored")
	}
}

func TestRunSweeper(t *testing.T) {
	s, clk := newTestScheduler()
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	swept := make(chan struct{}, 4)
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, 30*time.Second, func(context.Context) (int, error) {
			swept <- struct{}{}
			return 1, nil
		})
		close(done)
	}()

	// The ticker registers asynchronously; advance until it fires.
	deadline := time.Now().Add(2 * time.Second)
	for {
		clk.Advance(30 * time.Second)
		select {
		case <-swept:
			cancel()
			<-done
			return
		case <-time.After(5 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("sweep never ran")
		}
	}
}
