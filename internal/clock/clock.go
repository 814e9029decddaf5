// Package clock provides the daemon's single source of time: a 64-bit
// monotonic millisecond counter, and a hashed timing wheel built on top of
// it for one-shot and periodic callbacks.
//
// Every duration and deadline in the daemon (NHDP hold times, TC
// validity, Dijkstra rate limiting) is expressed in this unit so that
// comparisons never have to reconcile wall-clock jumps (NTP steps, DST)
// with protocol timing.
package clock

import "time"

// Time is a monotonic millisecond timestamp. Zero is arbitrary but
// monotonic for the process lifetime: only differences between two Time
// values are meaningful across runs.
type Time int64

// Duration is a span of milliseconds.
type Duration int64

func (d Duration) Milliseconds() int64   { return int64(d) }
func (t Time) Add(d Duration) Time       { return t + Time(d) }
func (t Time) Before(o Time) bool        { return t < o }
func (t Time) After(o Time) bool         { return t > o }
func (t Time) Sub(o Time) Duration       { return Duration(t - o) }
func MillisFromDuration(d time.Duration) Duration { return Duration(d.Milliseconds()) }

// Clock is the interface the rest of the daemon depends on, so tests can
// substitute a fake clock that advances deterministically instead of
// sleeping in wall time.
type Clock interface {
	Now() Time
}

// Real is a Clock backed by time.Now(), anchored at the moment it is
// constructed so that Time values stay small and readable in logs/tests.
type Real struct {
	epoch time.Time
}

// NewReal creates a Clock anchored at the current wall-clock instant.
func NewReal() *Real {
	return &Real{epoch: time.Now()}
}

func (r *Real) Now() Time {
	return Time(time.Since(r.epoch).Milliseconds())
}

// Fake is a Clock a test can advance explicitly.
type Fake struct {
	now Time
}

// NewFake creates a Fake clock starting at the given Time (0 is a
// reasonable default).
func NewFake(start Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() Time { return f.now }

// Advance moves the fake clock forward by d and returns the new time. It
// does not fire any timers by itself; callers using Fake together with a
// Wheel must call Wheel.Walk after advancing.
func (f *Fake) Advance(d Duration) Time {
	f.now += Time(d)
	return f.now
}
