package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically tears down inactive sessions.
type Sweeper struct {
	Registry  *Registry
	Interval  time.Duration
	Threshold time.Duration
	Logger    *slog.Logger
}

// Run blocks until ctx is done, sweeping every Interval.
func (sw *Sweeper) Run(ctx context.Context) {
	interval := sw.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := sw.Registry.CleanupInactive(ctx, sw.Threshold)
			if n > 0 && sw.Logger != nil {
				sw.Logger.Info("inactivity sweep", "removed", n)
			}
		}
	}
}
