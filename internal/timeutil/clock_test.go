package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_After(t *testing.T) {
	clock := RealClock{}
	select {
	case <-clock.After(5 * time.Millisecond):
	case <-time.After(time.Second):
		t.Error("After did not fire")
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if !clock.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", clock.Now(), start)
	}

	clock.Advance(time.Second)
	if got := clock.Now().Sub(start); got != time.Second {
		t.Errorf("Advance moved clock by %v, want 1s", got)
	}

	fired := <-clock.After(100 * time.Millisecond)
	if want := start.Add(1100 * time.Millisecond); !fired.Equal(want) {
		t.Errorf("After delivered %v, want %v", fired, want)
	}
	if !clock.Now().Equal(fired) {
		t.Errorf("After should move the clock to the delivered time")
	}

	waits := clock.Waits()
	if len(waits) != 1 || waits[0] != 100*time.Millisecond {
		t.Errorf("Waits() = %v, want [100ms]", waits)
	}

	clock.Set(start)
	if !clock.Now().Equal(start) {
		t.Errorf("Set did not reset the clock")
	}
}
