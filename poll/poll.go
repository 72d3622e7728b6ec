// Package poll repeatedly checks a condition at a fixed interval
// until it holds or a timeout elapses.
package poll

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimeout is returned by Until when the condition did not hold in time
var ErrTimeout = errors.New("poll: timeout waiting for condition")

// Condition is checked once per interval.  Returning an error stops polling.
type Condition func() (bool, error)

// Until evaluates cond immediately and then once per interval until it
// returns true.  A timeout <= 0 polls forever.  ErrTimeout is only returned
// once the whole timeout has elapsed, after a final evaluation of cond.
func Until(interval, timeout time.Duration, cond Condition) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return UntilContext(ctx, interval, cond)
}

// UntilContext is Until bounded by a context instead of a timeout
func UntilContext(ctx context.Context, interval time.Duration, cond Condition) error {
	// burst of one: the first Wait returns immediately
	lim := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			if ctx.Err() == context.Canceled {
				return ctx.Err()
			}
			if _, ok := ctx.Deadline(); !ok {
				return err
			}
			// Wait refuses a token due after the deadline; sit out the
			// remainder so the timeout has fully elapsed, then look once more
			<-ctx.Done()
			if ctx.Err() == context.Canceled {
				return ctx.Err()
			}
			done, err := cond()
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			return ErrTimeout
		}
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
