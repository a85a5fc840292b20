// Package common provides small shared helpers.
package common

import (
	"fmt"
	"time"
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Timer measures one span of work, such as a page's OCR call or a whole
// manifest.
type Timer struct {
	now      Clock
	start    time.Time
	name     string
	duration time.Duration
	stopped  bool
}

// NewNamedTimer starts a timer with the given name.
func NewNamedTimer(name string) *Timer {
	return NewNamedTimerWithClock(name, time.Now)
}

// NewNamedTimerWithClock starts a timer reading time from now.
func NewNamedTimerWithClock(name string, now Clock) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now, name: name, start: now()}
}

// Stop freezes the timer and returns the elapsed duration. Later calls
// return the same value.
func (t *Timer) Stop() time.Duration {
	if !t.stopped {
		t.duration = t.now().Sub(t.start)
		t.stopped = true
	}
	return t.duration
}

// Elapsed returns the time since start, or the frozen duration once stopped.
func (t *Timer) Elapsed() time.Duration {
	if t.stopped {
		return t.duration
	}
	return t.now().Sub(t.start)
}

// Milliseconds is Stop in whole milliseconds.
func (t *Timer) Milliseconds() int64 {
	return t.Stop().Milliseconds()
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.duration)
	}
	return fmt.Sprintf("%v", t.duration)
}
