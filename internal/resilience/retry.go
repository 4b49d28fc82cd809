package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy is a retry schedule: exponential backoff from Base, capped at Max,
// spread by ±Jitter.
type Policy struct {
	// Attempts is the total number of tries including the first.
	Attempts int
	Base     time.Duration
	Max      time.Duration
	Jitter   float64

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy is the SMS delivery schedule: three tries, 500ms then 1s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Max:      10 * time.Second,
		Jitter:   0.2,
	}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Max <= 0 {
		p.Max = def.Max
	}
	if p.Max < p.Base {
		p.Max = p.Base
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = 0
	}
	return p
}

// Delay is the wait after failed attempt n (1-based). A throttled failure
// waits at least as long as the provider asked, but never longer than Max.
func (p Policy) Delay(n int, err error) time.Duration {
	p = p.normalized()

	d := p.Base
	for i := 1; i < n && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * p.Jitter * float64(d))
	}

	if Classify(err) == ClassThrottled {
		if ra := min(requestedDelay(err), p.Max); ra > d {
			d = ra
		}
	}
	return d
}

// Retry calls fn until it succeeds, fails with a non-retryable error, runs
// out of attempts, or ctx ends. The last error is returned.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt >= p.Attempts || !Retryable(err) || ctx.Err() != nil {
			return zero, err
		}

		wait := p.Delay(attempt, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// LogRetries returns an OnRetry hook that logs each retry of op.
func LogRetries(op string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		zap.L().Warn("retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.String("class", Classify(err).String()),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
}
