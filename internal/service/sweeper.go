package service

import (
	"context"
	"time"
)

// RunSweeper calls ExpirySweep every interval until ctx is done.  A failed
// cycle is logged by the sweep itself and retried on the next tick.
func RunSweeper(ctx context.Context, d *ConflictDetector, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	d.log.Info("sweeper started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			d.log.Info("sweeper stopped")
			return
		case <-t.C:
			_, _ = d.ExpirySweep(ctx)
		}
	}
}
