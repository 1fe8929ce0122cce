package retry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy bounds one retried operation.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// maxDelay bounds a single backoff wait.
const maxDelay = time.Hour

// Delay returns the wait after the zero-based attempt index, doubling from
// InitialDelay and saturating at one hour.
func (p Policy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	d := p.InitialDelay
	for i := 0; i < attempt; i++ {
		if d >= maxDelay/2 {
			return maxDelay
		}
		d *= 2
	}
	return min(d, maxDelay)
}

// Executor carries the collaborators shared by every retried call.
// The zero value is usable: it logs nothing and sleeps on the wall clock.
type Executor struct {
	Log   *zap.Logger
	Sleep func(ctx context.Context, d time.Duration) error
}

// Do runs op up to p.MaxAttempts times with exponential backoff between attempts.
// When every attempt fails, the last error is returned as-is.
func Do[T any](ctx context.Context, e *Executor, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	log := zap.NewNop()
	sleep := SleepContext
	if e != nil {
		if e.Log != nil {
			log = e.Log
		}
		if e.Sleep != nil {
			sleep = e.Sleep
		}
	}

	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		log.Warn("attempt failed",
			zap.String("op", name),
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if i == attempts-1 {
			break
		}
		d := p.Delay(i)
		log.Debug("retrying", zap.String("op", name), zap.Duration("delay", d))
		if serr := sleep(ctx, d); serr != nil {
			// cancelled while waiting; the caller still sees what the attempt produced
			break
		}
	}
	return zero, lastErr
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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
