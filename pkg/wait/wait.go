package wait

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the condition is not met before the deadline
var ErrTimeout = errors.New("timed out")

// ConditionFunc reports whether polling is done. A non-nil error stops
// polling immediately.
type ConditionFunc func(ctx context.Context) (done bool, err error)

// Waiter polls a condition at a fixed interval until it holds or the
// timeout elapses
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// Timeout returns the overall bound
func (w *Waiter) Timeout() time.Duration {
	return w.timeout
}

// Interval returns the polling interval
func (w *Waiter) Interval() time.Duration {
	return w.interval
}

// Until evaluates condition immediately and then on every tick. The
// context passed to condition expires at the deadline, so a probe in
// flight cannot push the wait past the timeout.
//
// It returns nil once condition reports done, ErrTimeout (wrapped with
// description) at the deadline, or the parent context's error if the
// parent is cancelled first.
func (w *Waiter) Until(ctx context.Context, description string, condition ConditionFunc) error {
	if w.timeout <= 0 {
		return fmt.Errorf("waiting for %s: non-positive timeout %v", description, w.timeout)
	}
	if w.interval <= 0 {
		return fmt.Errorf("waiting for %s: non-positive interval %v", description, w.interval)
	}

	waitCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		done, err := condition(waitCtx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-waitCtx.Done():
			return w.expired(ctx, description)
		case <-ticker.C:
		}

		// a tick and the deadline can fire together
		if waitCtx.Err() != nil {
			return w.expired(ctx, description)
		}
	}
}

func (w *Waiter) expired(parent context.Context, description string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return fmt.Errorf("waiting for %s after %v: %w", description, w.timeout, ErrTimeout)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
