package clock

import "time"

// Clock is the time source for deadline math and timers. Production code
// uses Real(); tests use Fake() and move time with Advance.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) *Timer
	NewTicker(d time.Duration) *Ticker
}

type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns false if it already fired
// or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }

func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}
