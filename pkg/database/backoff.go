package database

import (
	"context"
	"time"
)

// Backoff is a capped exponential delay: Delay << attempt, never above MaxDelay.
type Backoff struct {
	Delay    time.Duration
	MaxDelay time.Duration
}

func (b Backoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Delay << attempt
	if d <= 0 || d > b.MaxDelay {
		return b.MaxDelay
	}
	return d
}

// Wait sleeps for Next(attempt) or returns ctx.Err() if ctx ends first.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(b.Next(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
