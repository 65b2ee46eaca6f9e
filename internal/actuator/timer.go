package actuator

import (
	"sort"
	"sync"
	"time"
)

// Timer is a reusable one-shot deferred callback. It is created once and
// re-armed for every activation.
type Timer interface {
	// Start arms the timer to fire after d, replacing any pending deadline.
	Start(d time.Duration)

	// Stop disarms the timer. It reports whether a pending fire was cancelled.
	Stop() bool
}

// TimerFactory creates timers whose callbacks run on the timer service's own
// goroutine, never on the caller's.
type TimerFactory interface {
	NewTimer(name string, fn func()) Timer
}

// RealTimers creates timers backed by the runtime timer service.
type RealTimers struct{}

// NewTimer returns a disarmed timer that runs fn when it fires.
func (RealTimers) NewTimer(name string, fn func()) Timer {
	t := time.AfterFunc(time.Hour, fn)
	t.Stop()
	return &realTimer{t: t}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) Start(d time.Duration) { r.t.Reset(d) }
func (r *realTimer) Stop() bool            { return r.t.Stop() }

// FakeTimers is a virtual clock for tests. Timers fire synchronously from
// Advance, in deadline order, on the goroutine calling Advance.
type FakeTimers struct {
	mu     sync.Mutex
	base   time.Time
	now    time.Duration
	timers []*fakeTimer
}

// NewFakeTimers creates a virtual clock starting at base.
func NewFakeTimers(base time.Time) *FakeTimers {
	return &FakeTimers{base: base}
}

// NewTimer returns a disarmed virtual timer.
func (f *FakeTimers) NewTimer(name string, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{owner: f, name: name, fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// Now returns the virtual wall-clock time.
func (f *FakeTimers) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.base.Add(f.now)
}

// Advance moves virtual time forward by d, firing every timer that comes due.
func (f *FakeTimers) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due []*fakeTimer
		for _, t := range f.timers {
			if t.armed && t.deadline <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			f.now = target
			f.mu.Unlock()
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].deadline < due[j].deadline })
		next := due[0]
		f.now = next.deadline
		next.armed = false
		f.mu.Unlock()

		next.fn()
	}
}

// Armed reports how many timers are currently armed.
func (f *FakeTimers) Armed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if t.armed {
			n++
		}
	}
	return n
}

// Count reports how many timers were ever created.
func (f *FakeTimers) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

type fakeTimer struct {
	owner    *FakeTimers
	name     string
	fn       func()
	armed    bool
	deadline time.Duration
}

func (t *fakeTimer) Start(d time.Duration) {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	t.armed = true
	t.deadline = t.owner.now + d
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	was := t.armed
	t.armed = false
	return was
}
