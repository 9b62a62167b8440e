package marketplace

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/crosslist/backend/internal/domain/marketplace"
)

// RetryPolicy bounds how transient adapter failures are retried.
// Attempts counts the first call, so Attempts=3 means at most two retries.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy is three attempts with 2s, 4s backoff capped at 30s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	p = p.normalized()
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = p.MaxDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.Attempts-1)), ctx)
}

// retryNotify is called before each backoff wait with the failed attempt number
type retryNotify func(attempt int, err *marketplace.SyncError, wait time.Duration)

// run invokes call until it succeeds, fails non-transiently, exhausts the
// attempt budget, or ctx is done. It returns the last result and the number
// of calls made.
func (p RetryPolicy) run(ctx context.Context, call func(context.Context) marketplace.SyncResult, notify retryNotify) (marketplace.SyncResult, int) {
	var (
		result   marketplace.SyncResult
		attempts int
	)

	op := func() error {
		attempts++
		result = call(ctx)
		if result.IsSuccess() {
			return nil
		}
		if result.Err == nil {
			result = marketplace.Failed(nil)
		}
		if result.Err.Retryable() {
			return result.Err
		}
		return backoff.Permanent(result.Err)
	}

	onRetry := func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempts, marketplace.AsSyncError(err), wait)
		}
	}

	_ = backoff.RetryNotify(op, p.backOff(ctx), onRetry)
	return result, attempts
}
