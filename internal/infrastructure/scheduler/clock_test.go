package scheduler

import (
	"context"
	"testing"
	"time"
)

func TestManualClockSleepAdvances(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	if err := clock.Sleep(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if got := clock.Now().Sub(start); got != 5*time.Second {
		t.Fatalf("expected 5s elapsed, got %v", got)
	}
	if sleeps := clock.Sleeps(); len(sleeps) != 1 || sleeps[0] != 5*time.Second {
		t.Fatalf("unexpected recorded sleeps: %v", sleeps)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := clock.Sleep(ctx, time.Second); err == nil {
		t.Fatalf("sleep on cancelled context should fail")
	}
}

func TestManualTickerFires(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Minute)

	clock.Advance(30 * time.Second)
	select {
	case <-ticker.C():
		t.Fatalf("ticker fired early")
	default:
	}

	clock.Advance(30 * time.Second)
	select {
	case at := <-ticker.C():
		if at != time.Unix(60, 0) {
			t.Fatalf("unexpected tick time: %v", at)
		}
	default:
		t.Fatalf("ticker did not fire")
	}

	ticker.Stop()
	clock.Advance(time.Hour)
	select {
	case <-ticker.C():
		t.Fatalf("stopped ticker fired")
	default:
	}
}

func TestRealClockSleepHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := (RealClock{}).Sleep(ctx, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
}
