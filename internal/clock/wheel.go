package clock

import (
	"container/list"
	"math/rand"
)

// slotCount is the hashed wheel's resolution. A timer whose deadline falls
// within the wheel's horizon (slotCount * slotWidth) is placed directly in
// a slot; anything further out goes into the sorted long-range bucket,
// stays there, and fires from there once its deadline is due.
const slotCount = 1024

// SlotWidth is the granularity of one wheel slot.
const SlotWidth Duration = 100 // milliseconds

// Callback is invoked when a timer fires. ctx is the opaque value the
// caller registered the timer with.
type Callback func(ctx interface{})

// Class groups timers that share a callback, mirroring the data model's
// timer_info: it also tracks which of its timers is presently executing
// its callback, so that callback calling Stop() on itself is safe and the
// walker knows not to re-arm a periodic timer that stopped itself.
type Class struct {
	name    string
	cb      Callback
	current *Timer // the timer whose callback is currently running, if any
}

// NewClass creates a timer class with the given callback.
func NewClass(name string, cb Callback) *Class {
	return &Class{name: name, cb: cb}
}

// Timer is a single scheduled callback: one-shot or periodic, with
// optional jitter.
type Timer struct {
	class    *Class
	ctx      interface{}
	deadline Time
	period   Duration // 0 for one-shot
	jitterPC int      // percent of period subtracted at random on rearm

	wheel *Wheel
	elem  *list.Element // membership in its current slot or the overflow bucket
	slot  int           // -1 if in the overflow bucket
}

// Stop cancels the timer. Safe to call from within the timer's own
// callback (the class's "current" guard makes self-cancellation safe per
// this package's own design notes), and safe to call more than once.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	if t.class != nil && t.class.current == t {
		t.class.current = nil
	}
	if t.wheel == nil {
		return
	}
	t.wheel.remove(t)
	t.wheel = nil
}

// Active reports whether the timer is still armed.
func (t *Timer) Active() bool { return t != nil && t.wheel != nil }

// Deadline returns the timer's absolute fire time.
func (t *Timer) Deadline() Time { return t.deadline }

// Rearm reschedules an existing, possibly stopped, timer to fire at the
// given deadline (replacing period/jitter with the provided one-shot
// semantics). This is used by code that wants to refresh a hold-time timer
// (e.g. NHDP vtime) without allocating a new Timer object.
func (t *Timer) Rearm(w *Wheel, deadline Time) {
	t.Stop()
	t.deadline = deadline
	t.period = 0
	w.insert(t)
}

// Wheel is a hashed timing wheel: walking it advances a "now" pointer,
// unlinks due timers, and runs their callbacks. Ordering: timers with
// identical deadlines fire in registration (insertion) order, because each
// slot is a FIFO list and Walk drains slots oldest-entry-first.
type Wheel struct {
	clk      Clock
	now      Time
	slots    [slotCount]*list.List
	overflow *list.List // timers beyond the wheel's horizon, sorted by deadline
	rng      *rand.Rand
	seq      uint64 // not read or written; equal deadlines keep slot FIFO order
}

// NewWheel creates a Wheel anchored to clk's current time.
func NewWheel(clk Clock) *Wheel {
	w := &Wheel{
		clk:      clk,
		now:      clk.Now(),
		overflow: list.New(),
		rng:      rand.New(rand.NewSource(1)),
	}
	for i := range w.slots {
		w.slots[i] = list.New()
	}
	return w
}

// horizon is how far into the future the hashed part of the wheel reaches.
func (w *Wheel) horizon() Duration { return Duration(slotCount) * SlotWidth }

func (w *Wheel) slotFor(deadline Time) int {
	ticks := int64(deadline) / int64(SlotWidth)
	return int(((ticks % slotCount) + slotCount) % slotCount)
}

// NewOneShot arms a one-shot timer that fires after delay, optionally
// jittered (jitterPct in [0,100) subtracts a random fraction of delay from
// the actual fire time so network-wide events desynchronize, per
// the timer wheel design).
func (w *Wheel) NewOneShot(class *Class, ctx interface{}, delay Duration, jitterPct int) *Timer {
	t := &Timer{class: class, ctx: ctx, period: 0, jitterPC: jitterPct}
	t.deadline = w.now.Add(w.applyJitter(delay, jitterPct))
	w.insert(t)
	return t
}

// NewPeriodic arms a timer that re-fires every period, jittered the same
// way on every rearm.
func (w *Wheel) NewPeriodic(class *Class, ctx interface{}, period Duration, jitterPct int) *Timer {
	t := &Timer{class: class, ctx: ctx, period: period, jitterPC: jitterPct}
	t.deadline = w.now.Add(w.applyJitter(period, jitterPct))
	w.insert(t)
	return t
}

func (w *Wheel) applyJitter(d Duration, pct int) Duration {
	if pct <= 0 || d <= 0 {
		return d
	}
	if pct > 100 {
		pct = 100
	}
	maxCut := int64(d) * int64(pct) / 100
	if maxCut <= 0 {
		return d
	}
	cut := w.rng.Int63n(maxCut + 1)
	return d - Duration(cut)
}

func (w *Wheel) insert(t *Timer) {
	t.wheel = w
	if t.deadline.Sub(w.now) >= w.horizon() {
		t.slot = -1
		t.elem = w.insertOverflowSorted(t)
		return
	}
	s := w.slotFor(t.deadline)
	t.slot = s
	t.elem = w.slots[s].PushBack(t)
}

func (w *Wheel) insertOverflowSorted(t *Timer) *list.Element {
	for e := w.overflow.Front(); e != nil; e = e.Next() {
		if e.Value.(*Timer).deadline.After(t.deadline) {
			return w.overflow.InsertBefore(t, e)
		}
	}
	return w.overflow.PushBack(t)
}

func (w *Wheel) remove(t *Timer) {
	if t.elem == nil {
		return
	}
	if t.slot < 0 {
		w.overflow.Remove(t.elem)
	} else {
		w.slots[t.slot].Remove(t.elem)
	}
	t.elem = nil
}

// NextDeadline reports the earliest time any armed timer will fire, or ok
// == false if the wheel is empty. The main loop uses this to size its
// select/poll timeout (the event-loop model: "timer-wheel walking" is one of the
// three things interleaved in the main loop).
func (w *Wheel) NextDeadline() (Time, bool) {
	best, ok := Time(0), false
	consider := func(t Time) {
		if !ok || t.Before(best) {
			best, ok = t, true
		}
	}
	for _, s := range w.slots {
		for e := s.Front(); e != nil; e = e.Next() {
			consider(e.Value.(*Timer).deadline)
		}
	}
	if e := w.overflow.Front(); e != nil {
		consider(e.Value.(*Timer).deadline)
	}
	return best, ok
}

// Walk advances the wheel to clk.Now(), running every timer whose deadline
// has passed. Periodic timers rearm from their *previous* deadline (not
// from "now"), preserving the average period per the timer wheel design; the rearm
// is skipped if the timer's own callback called Stop() on it (detected via
// the class's "current" guard).
func (w *Wheel) Walk() {
	newNow := w.clk.Now()
	if newNow.Before(w.now) {
		return
	}
	w.fireDue(newNow)
	w.now = newNow
}

func (w *Wheel) fireDue(upto Time) {
	for {
		t := w.popEarliestDue(upto)
		if t == nil {
			return
		}
		w.now = t.deadline
		prevDeadline := t.deadline
		t.class.current = t
		t.wheel = nil // mark inactive while the callback runs
		t.class.cb(t.ctx)
		if t.class.current != t {
			// Stop() was called from within the callback; do not rearm.
			continue
		}
		t.class.current = nil
		if t.period > 0 {
			t.deadline = prevDeadline.Add(w.applyJitter(t.period, t.jitterPC))
			w.insert(t)
		}
	}
}

// popEarliestDue removes and returns the earliest timer due at or before
// upto, across both the hashed slots and the overflow bucket, preferring
// strictly earlier deadlines and falling back to slot order (registration
// order within identical deadlines) when equal.
func (w *Wheel) popEarliestDue(upto Time) *Timer {
	var best *Timer
	var bestList *list.List
	var bestElem *list.Element

	check := func(l *list.List) {
		for e := l.Front(); e != nil; e = e.Next() {
			t := e.Value.(*Timer)
			if t.deadline.After(upto) {
				continue
			}
			if best == nil || t.deadline.Before(best.deadline) {
				best, bestList, bestElem = t, l, e
			}
		}
	}
	for _, s := range w.slots {
		check(s)
	}
	check(w.overflow)

	if best == nil {
		return nil
	}
	bestList.Remove(bestElem)
	best.elem = nil
	return best
}
