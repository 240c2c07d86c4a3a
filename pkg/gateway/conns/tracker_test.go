package conns

import (
	"context"
	"testing"
	"time"
)

func TestTracker_RegisterUnregister(t *testing.T) {
	t.Parallel()
	tr := NewTracker()

	unregister := tr.Register("c1", Handle{})
	if got := tr.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}

	unregister()
	if got := tr.Count(); got != 0 {
		t.Fatalf("Count() after unregister = %d, want 0", got)
	}

	// Double unregister must be safe.
	unregister()
}

func TestTracker_ReregisterEvictsOld(t *testing.T) {
	t.Parallel()
	tr := NewTracker()

	tr.Register("c1", Handle{})
	unregister := tr.Register("c1", Handle{})
	if got := tr.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1 after re-register", got)
	}

	unregister()
	if got := tr.Count(); got != 0 {
		t.Fatalf("Count() = %d, want 0", got)
	}
}

func TestTracker_WarnAllAndCancelAll(t *testing.T) {
	t.Parallel()
	tr := NewTracker()

	warned := 0
	canceled := 0
	tr.Register("c1", Handle{
		Warn:   func(code, message string) error { warned++; return nil },
		Cancel: func() { canceled++ },
	})
	tr.Register("c2", Handle{
		Cancel: func() { canceled++ },
	})

	if got := tr.WarnAll("draining", "bye"); got != 1 {
		t.Fatalf("WarnAll() = %d, want 1", got)
	}
	if warned != 1 {
		t.Fatalf("warned = %d, want 1", warned)
	}
	if got := tr.CancelAll(); got != 2 {
		t.Fatalf("CancelAll() = %d, want 2", got)
	}
	if canceled != 2 {
		t.Fatalf("canceled = %d, want 2", canceled)
	}
}

func TestTracker_WaitReturnsWhenEmpty(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	unregister := tr.Register("c1", Handle{})

	done := make(chan bool, 1)
	go func() { done <- tr.Wait(context.Background()) }()

	unregister()
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("Wait() = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Wait() never returned")
	}
}

func TestTracker_WaitTimesOut(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	unregister := tr.Register("c1", Handle{})
	defer unregister()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if tr.Wait(ctx) {
		t.Fatalf("Wait() = true with a live connection, want false")
	}
}

func TestTracker_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()
	var tr *Tracker
	unregister := tr.Register("c1", Handle{})
	unregister()
	if tr.Count() != 0 || tr.WarnAll("x", "y") != 0 || tr.CancelAll() != 0 {
		t.Fatalf("nil tracker operations should be zero-valued")
	}
	if !tr.Wait(context.Background()) {
		t.Fatalf("nil tracker Wait() = false, want true")
	}
}
