package fn

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryOpts configures Retry. The wait doubles after each failure and is
// capped at MaxWait; Jitter scales each wait by a random factor in [0.5, 1.5).
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
}

func (o RetryOpts) delay(wait time.Duration) time.Duration {
	if o.Jitter {
		wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
	}
	if o.MaxWait > 0 {
		wait = min(wait, o.MaxWait)
	}
	return wait
}

// Retry calls f until it succeeds or MaxAttempts is reached, returning the
// last result. Cancelling ctx stops the wait and returns ctx.Err().
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	attempts := max(opts.MaxAttempts, 1)
	wait := opts.InitialWait

	var result Result[T]
	for attempt := 1; ; attempt++ {
		result = f(ctx)
		if result.IsOk() || attempt == attempts {
			return result
		}

		timer := time.NewTimer(opts.delay(wait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Err[T](ctx.Err())
		case <-timer.C:
		}
		wait *= 2
	}
}
