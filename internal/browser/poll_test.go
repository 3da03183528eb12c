package browser

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollUntilFindsOnLaterCheck(t *testing.T) {
	t.Parallel()

	const (
		window   = 2 * time.Second
		interval = 40 * time.Millisecond
	)
	var calls atomic.Int32
	started := time.Now()
	v, ok := PollUntil(context.Background(), window, interval, func(context.Context) (int, bool) {
		n := calls.Add(1)
		return int(n), n >= 2
	})
	elapsed := time.Since(started)
	if !ok || v != 2 {
		t.Fatalf("expected success on second check, got %d %v", v, ok)
	}
	if elapsed < interval {
		t.Fatalf("second check ran before one interval passed: %s", elapsed)
	}
	if elapsed >= window/2 {
		t.Fatalf("poll kept waiting after the check succeeded: %s", elapsed)
	}
}

func TestPollUntilWindowCloses(t *testing.T) {
	t.Parallel()

	started := time.Now()
	_, ok := PollUntil(context.Background(), 50*time.Millisecond, 10*time.Millisecond, func(context.Context) (int, bool) {
		return 0, false
	})
	if ok {
		t.Fatalf("expected poll to give up")
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("poll ran past its window: %s", elapsed)
	}
}

func TestPollUntilStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := PollUntil(ctx, time.Minute, 10*time.Millisecond, func(context.Context) (int, bool) {
		return 0, false
	})
	if ok {
		t.Fatalf("expected a cancelled poll to give up")
	}
}
