// Package retry runs an operation a bounded number of times with linear
// backoff between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy configures Do. The wait before attempt n+1 is BaseDelay * n.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Notify is called after a failed attempt that will be retried.
type Notify func(attempt int, err error, wait time.Duration)

type options struct {
	sleep  Sleeper
	notify Notify
}

type Option func(*options)

// WithSleeper replaces the timer-based wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		o.sleep = s
	}
}

func WithNotify(n Notify) Option {
	return func(o *options) {
		o.notify = n
	}
}

// Do runs op until it succeeds or MaxAttempts is reached and returns the
// last error. A MaxAttempts below 1 is treated as a single attempt.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{sleep: sleepContext}
	for _, opt := range opts {
		opt(&o)
	}

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		zero    T
		lastErr error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		wait := policy.BaseDelay * time.Duration(attempt)
		if o.notify != nil {
			o.notify(attempt, err, wait)
		}

		if err := o.sleep(ctx, wait); err != nil {
			return zero, errors.Join(err, lastErr)
		}
	}

	return zero, fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
