package fetch

import (
	"context"
	"net/http"
	"time"
)

// rateLimitFactor stretches the delay after a 429.
const rateLimitFactor = 5

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retryDelay returns the pause before the next attempt after a failure with status.
func retryDelay(base time.Duration, status int) time.Duration {
	if status == http.StatusTooManyRequests {
		return base * rateLimitFactor
	}
	return base
}
