package sched

import (
	"testing"
	"time"
)

func TestNoneNeverTimesOut(t *testing.T) {
	d := None()
	if d.TimedOut() {
		t.Fatalf("None() should never time out")
	}
}

func TestSetLatchesOnceExpired(t *testing.T) {
	d := Set(time.Now().Add(-time.Millisecond))
	if !d.TimedOut() {
		t.Fatalf("expected already-passed deadline to report timed out")
	}
	if !d.TimedOut() {
		t.Fatalf("expected latched timed-out state to persist")
	}
}

func TestSetFutureNotYetTimedOut(t *testing.T) {
	d := Set(time.Now().Add(time.Hour))
	if d.TimedOut() {
		t.Fatalf("expected future deadline to not be timed out yet")
	}
}
