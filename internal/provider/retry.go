package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PermanentError marks a failure that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RetryPolicy is a bounded exponential backoff: the i-th wait (0-based) is
// MinWait * 2^i, capped at MaxWait.
type RetryPolicy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, MinWait: time.Second, MaxWait: 10 * time.Second}
}

func (p RetryPolicy) backoff(i int) time.Duration {
	d := p.MinWait
	for ; i > 0 && d < p.MaxWait; i-- {
		d *= 2
	}
	if p.MaxWait > 0 && d > p.MaxWait {
		d = p.MaxWait
	}
	return d
}

// Do calls fn until it succeeds, returns a PermanentError, the attempts are
// exhausted, or ctx is done.
func Do[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	var last error
	for i := 0; i < p.Attempts; i++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, last)
			}
			return zero, err
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return zero, err
		}
		last = err
		if i == p.Attempts-1 {
			break
		}
		t := time.NewTimer(p.backoff(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, fmt.Errorf("%w (last error: %v)", ctx.Err(), last)
		case <-t.C:
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", p.Attempts, last)
}
