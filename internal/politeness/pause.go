package politeness

import (
	"context"
	"time"
)

// TimerPauser blocks on a timer and honours context cancellation.
type TimerPauser struct{}

// Pause implements crawler.Pauser.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
