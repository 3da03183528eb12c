package browser

import (
	"context"
	"time"
)

// PollUntil calls check immediately and then every interval until it reports done,
// the window closes or ctx ends. The last value is returned either way.
func PollUntil[T any](ctx context.Context, window, interval time.Duration, check func(ctx context.Context) (T, bool)) (T, bool) {
	pollCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, done := check(pollCtx)
		if done {
			return v, true
		}
		select {
		case <-pollCtx.Done():
			return v, false
		case <-ticker.C:
		}
	}
}
