// Package retry wraps remote calls in a bounded exponential backoff.
//
// Only errors classified as retryable (ports.ErrTransient by default) get
// another attempt; everything else is returned immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sufield/signet/internal/ports"
)

// Policy bounds one retried operation.
type Policy struct {
	// Attempts is the total number of calls, first one included. Values
	// below 1 mean a single call.
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Retryable classifies errors. Nil means ports.IsRetryable.
	Retryable func(error) bool

	// Notify is called before each wait with the failed attempt's error.
	Notify func(err error, wait time.Duration)
}

// Default is three attempts starting at one second.
func Default() Policy {
	return Policy{Attempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second}
}

// WithAttempts returns a copy of p limited to n attempts.
func (p Policy) WithAttempts(n int) Policy {
	p.Attempts = n
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do calls op until it succeeds, fails permanently, exhausts p.Attempts or
// ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations returning a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = ports.IsRetryable
	}

	var (
		result  T
		lastErr error
	)
	err := backoff.RetryNotify(func() error {
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		if p.Notify != nil {
			p.Notify(err, wait)
		}
	})
	if err != nil && lastErr != nil && ctx.Err() != nil && err == ctx.Err() {
		// keep the operation's error visible next to the cancellation
		return result, &cancelledError{ctxErr: err, last: lastErr}
	}
	return result, err
}

type cancelledError struct {
	ctxErr error
	last   error
}

func (e *cancelledError) Error() string {
	return e.ctxErr.Error() + " (last attempt: " + e.last.Error() + ")"
}

func (e *cancelledError) Unwrap() []error { return []error{e.ctxErr, e.last} }
