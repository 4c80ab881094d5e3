package apiclient

import (
	"context"
	"time"
)

const (
	backoffBase = time.Second
	backoffMax  = 10 * time.Second
)

// Backoff returns the delay before retry n (1-based): 1s, 3s, 7s, then
// capped at 10s.
func Backoff(n int) time.Duration {
	if n < 1 {
		return 0
	}
	if n > 4 {
		return backoffMax
	}
	d := backoffBase * time.Duration((1<<n)-1)
	if d > backoffMax {
		return backoffMax
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
