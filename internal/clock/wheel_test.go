package clock

import "testing"

func TestOneShotFiresOnce(t *testing.T) {
	fc := NewFake(0)
	w := NewWheel(fc)
	fired := 0
	cls := NewClass("test", func(ctx interface{}) { fired++ })
	w.NewOneShot(cls, nil, 500, 0)

	fc.Advance(200)
	w.Walk()
	if fired != 0 {
		t.Fatalf("fired too early: %d", fired)
	}

	fc.Advance(400)
	w.Walk()
	if fired != 1 {
		t.Fatalf("want 1 fire, got %d", fired)
	}

	fc.Advance(1000)
	w.Walk()
	if fired != 1 {
		t.Fatalf("one-shot must not refire, got %d", fired)
	}
}

func TestPeriodicRearmsFromPreviousDeadline(t *testing.T) {
	fc := NewFake(0)
	w := NewWheel(fc)
	var deadlines []Time
	cls := NewClass("periodic", func(ctx interface{}) {})
	timer := w.NewPeriodic(cls, nil, 300, 0)
	deadlines = append(deadlines, timer.Deadline())

	for i := 0; i < 3; i++ {
		fc.Advance(300)
		w.Walk()
		deadlines = append(deadlines, timer.Deadline())
	}

	for i := 1; i < len(deadlines); i++ {
		if deadlines[i]-deadlines[i-1] != 300 {
			t.Fatalf("periodic timer drifted: %v", deadlines)
		}
	}
}

func TestSelfCancelDuringCallbackIsSafe(t *testing.T) {
	fc := NewFake(0)
	w := NewWheel(fc)
	var timer *Timer
	fired := 0
	cls := NewClass("self-cancel", func(ctx interface{}) {
		fired++
		timer.Stop()
	})
	timer = w.NewPeriodic(cls, nil, 100, 0)

	fc.Advance(100)
	w.Walk()
	if fired != 1 {
		t.Fatalf("want 1 fire, got %d", fired)
	}

	fc.Advance(1000)
	w.Walk()
	if fired != 1 {
		t.Fatalf("timer stopped inside its own callback must not rearm, got %d fires", fired)
	}
}

func TestIdenticalDeadlinesFireInRegistrationOrder(t *testing.T) {
	fc := NewFake(0)
	w := NewWheel(fc)
	var order []int
	cls := NewClass("order", nil)
	for i := 0; i < 5; i++ {
		i := i
		c := NewClass("order", func(ctx interface{}) { order = append(order, i) })
		w.NewOneShot(c, nil, 100, 0)
		_ = cls
	}
	fc.Advance(100)
	w.Walk()
	for i, v := range order {
		if v != i {
			t.Fatalf("expected registration order, got %v", order)
		}
	}
}

func TestNextDeadlineReflectsEarliestTimer(t *testing.T) {
	fc := NewFake(0)
	w := NewWheel(fc)
	if _, ok := w.NextDeadline(); ok {
		t.Fatal("empty wheel must report no deadline")
	}
	cls := NewClass("x", func(ctx interface{}) {})
	w.NewOneShot(cls, nil, 500, 0)
	w.NewOneShot(cls, nil, 200, 0)
	d, ok := w.NextDeadline()
	if !ok || d != 200 {
		t.Fatalf("want earliest deadline 200, got %v (ok=%v)", d, ok)
	}
}

func TestLongRangeTimerBeyondHorizonStillFires(t *testing.T) {
	fc := NewFake(0)
	w := NewWheel(fc)
	fired := false
	cls := NewClass("long", func(ctx interface{}) { fired = true })
	// horizon is slotCount*SlotWidth = 1024*100ms ~= 102s; schedule well beyond it.
	w.NewOneShot(cls, nil, 5*Duration(w.horizon()), 0)
	fc.Advance(5 * Duration(w.horizon()))
	w.Walk()
	if !fired {
		t.Fatal("long-range timer in the overflow bucket never fired")
	}
}
