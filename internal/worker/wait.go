package worker

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
)

// WaitFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type WaitFunc func(ctx context.Context, d time.Duration) error

// JitteredWait waits about d, with a normal jitter of 2% of d.
func JitteredWait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	ticker := jitterbug.New(d, &jitterbug.Norm{Stdev: d / 50, Mean: 0})
	defer ticker.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ticker.C:
		return nil
	}
}
