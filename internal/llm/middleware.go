package llm

import (
	"context"
	"errors"
	"time"

	"tripplanner/internal/tracelog"
)

// Middleware decorates an Engine with a cross-cutting concern.
type Middleware func(Engine) Engine

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Engine, mws ...Middleware) Engine {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. If the context is canceled, it stops immediately. Errors that
// cannot clear on another attempt are returned without waiting.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Engine) Engine {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Engine
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }
func (r *retrying) Generate(ctx context.Context, system, user string) (string, error) {
	var last error
	for i := 0; i < r.max; i++ {
		out, err := r.next.Generate(ctx, system, user)
		if err == nil {
			return out, nil
		}
		last = err
		if i == r.max-1 || !retryable(err) {
			break
		}
		t := time.NewTimer(r.base * time.Duration(1<<i))
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return "", last
}

// retryable reports whether err may clear on another attempt. A finished
// context and an empty reply from the model do not.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrEmptyResponse):
		return false
	}
	return true
}

// WithLogging logs request size, latency and errors through the logger
// carried in the context.
func WithLogging() Middleware {
	return func(next Engine) Engine {
		return &logging{next: next}
	}
}

type logging struct {
	next Engine
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) Generate(ctx context.Context, system, user string) (string, error) {
	log := tracelog.Logger(ctx).With("engine", l.next.Name())
	start := time.Now()
	log.Debug("llm request", "bytes", len(system)+len(user))
	out, err := l.next.Generate(ctx, system, user)
	if err != nil {
		log.Warn("llm error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return out, err
	}
	log.Debug("llm response", "bytes", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// Hook observes every Generate call. After receives the wall time of the
// wrapped call.
type Hook interface {
	Before(ctx context.Context, system, user string)
	After(ctx context.Context, raw string, err error, elapsed time.Duration)
}

// WithHook runs h around the wrapped engine. A nil hook is a no-op.
func WithHook(h Hook) Middleware {
	return func(next Engine) Engine {
		if h == nil {
			return next
		}
		return &hooked{next: next, hook: h}
	}
}

type hooked struct {
	next Engine
	hook Hook
}

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }
func (h *hooked) Generate(ctx context.Context, system, user string) (string, error) {
	h.hook.Before(ctx, system, user)
	start := time.Now()
	out, err := h.next.Generate(ctx, system, user)
	h.hook.After(ctx, out, err, time.Since(start))
	return out, err
}
