// Package retry runs an operation again after exponentially growing pauses
// while its error is classified as retryable.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy configures Do.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the pause before the first retry; every later pause doubles.
	BaseDelay time.Duration
	// Retryable decides whether an error deserves another attempt. Nil retries nothing.
	Retryable func(error) bool
	// Sleep waits for d or until ctx is done. Defaults to a timer-based sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each pause with the retry number (1-based).
	OnRetry func(retry int, delay time.Duration, err error)
}

// Delay returns the pause before the given retry (1-based): BaseDelay * 2^(retry-1).
func (p Policy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return p.BaseDelay << (retry - 1)
}

// Backoff returns the schedule of pauses: BaseDelay doubling on every retry,
// stopping after MaxRetries.
func (p Policy) Backoff() goretry.Backoff {
	var next goretry.Backoff = goretry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	if p.BaseDelay > 0 {
		next = goretry.NewExponential(p.BaseDelay)
	}
	limit := 0
	if p.MaxRetries > 0 {
		limit = p.MaxRetries
	}
	return goretry.WithMaxRetries(uint64(limit), next)
}

// Do calls op until it succeeds, returns a non-retryable error, or the retries
// are exhausted. The last error is returned. A cancelled context aborts the pause
// and returns ctx.Err().
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	backoff := p.Backoff()

	for retry := 1; ; retry++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		delay, stop := backoff.Next()
		if stop {
			return err
		}

		if p.OnRetry != nil {
			p.OnRetry(retry, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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
