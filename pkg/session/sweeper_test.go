package session

import (
	"context"
	"testing"
	"time"
)

func TestSweeper_RemovesStaleSessions(t *testing.T) {
	t.Parallel()
	reg, _, _ := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := time.Unix(1_700_000_000, 0)
	now := base
	reg.SetClock(func() time.Time { return now })

	if _, err := reg.Join(ctx, "stale", "alice", Options{}); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	now = base.Add(time.Hour)

	sw := &Sweeper{
		Registry:  reg,
		Interval:  10 * time.Millisecond,
		Threshold: 30 * time.Minute,
		Logger:    testLogger(),
	}
	go sw.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !reg.Exists("stale") {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stale session survived the sweeper")
}

func TestSweeper_StopsOnContextCancel(t *testing.T) {
	t.Parallel()
	reg, _, _ := newTestRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&Sweeper{Registry: reg, Interval: 10 * time.Millisecond, Threshold: time.Hour}).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not return after cancel")
	}
}
