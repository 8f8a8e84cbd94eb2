package usecase

import (
	"context"
	"time"

	"DecideInbox/internal/ports"
)

// every runs job after startDelay and then on every tick of interval until
// ctx is cancelled. A job always completes before the next one starts, so a
// slow job delays rather than overlaps its successor.
func every(ctx context.Context, clock ports.Clock, startDelay, interval time.Duration, job func(ctx context.Context)) {
	if job == nil || clock == nil {
		return
	}

	if startDelay > 0 {
		if err := clock.Sleep(ctx, startDelay); err != nil {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	job(ctx)

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			job(ctx)
		}
	}
}
