package repo

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
)

// RetryPolicy bounds how often a unit of work is re-run after losing a race.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(time.Second, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

// RetryConcurrent runs fn and re-runs it with the same inputs while it fails with
// ConcurrentModification. Every other outcome is returned as is. When retries are
// exhausted the last ConcurrentModification error is returned.
func RetryConcurrent(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if pkgerrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
