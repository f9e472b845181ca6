// Package expiry owns the process-side deadline timers. Every timer is
// keyed by the record it guards so a state transition can disarm it, and
// every callback is expected to re-check the record with a conditional
// write before acting.
package expiry

import (
	"context"
	"sync"
	"time"

	"campusq/pkg/clock"
	"campusq/pkg/logger"
)

// Func runs when a deadline is reached. The context is cancelled when the
// scheduler stops.
type Func func(ctx context.Context)

type entry struct {
	key      string
	deadline time.Time
	timer    *clock.Timer
	done     chan struct{} // closed once fn has returned
	firing   bool
}

type Scheduler struct {
	clock clock.Clock
	log   *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	firing  map[string]*entry
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(clk clock.Clock, log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:   clk,
		log:     log.With("component", "expiry"),
		entries: make(map[string]*entry),
		firing:  make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Schedule arms fn for key at deadline, replacing any pending registration
// for the same key. A deadline in the past fires on the next clock tick.
func (s *Scheduler) Schedule(key string, deadline time.Time, fn Func) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if old, ok := s.entries[key]; ok {
		if old.timer != nil {
			old.timer.Stop()
		}
		delete(s.entries, key)
	}

	e := &entry{key: key, deadline: deadline, done: make(chan struct{})}
	s.entries[key] = e
	s.mu.Unlock()

	delay := deadline.Sub(s.clock.Now())
	if delay <= 0 {
		delay = time.Nanosecond
	}
	timer := s.clock.AfterFunc(delay, func() { s.fire(e, fn) })

	s.mu.Lock()
	e.timer = timer
	s.mu.Unlock()
}

func (s *Scheduler) fire(e *entry, fn Func) {
	s.mu.Lock()
	if s.entries[e.key] != e || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.entries, e.key)
	e.firing = true
	s.firing[e.key] = e
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.firing[e.key] == e {
			delete(s.firing, e.key)
		}
		s.mu.Unlock()
		close(e.done)
		s.wg.Done()
	}()

	s.log.Debug("Deadline reached", "key", e.key, "deadline", e.deadline)
	fn(s.ctx)
}

// Cancel disarms key. Once it returns, the callback for that registration
// has either been prevented or has already finished running. Reports
// whether a pending registration was removed. Must not be called from
// inside the callback for the same key.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	pending, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
		if pending.timer != nil {
			pending.timer.Stop()
		}
	}
	inflight := s.firing[key]
	s.mu.Unlock()

	if inflight != nil {
		<-inflight.done
	}
	return ok
}

// Deadline returns the armed deadline for key, if any.
func (s *Scheduler) Deadline(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop disarms everything and waits for running callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, e := range s.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.entries, key)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("Expiry scheduler stopped")
}

// RunSweeper calls sweep every interval until ctx is done. The sweep is the
// backstop for deadlines whose timers were lost, for example across a
// restart or when another replica armed them.
func (s *Scheduler) RunSweeper(ctx context.Context, interval time.Duration, sweep func(ctx context.Context) (int, error)) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := sweep(ctx)
			if err != nil {
				s.log.Error("Expiry sweep failed", "error", err)
				continue
			}
			if count > 0 {
				s.log.Info("Expiry sweep applied", "count", count)
			}
		}
	}
}
