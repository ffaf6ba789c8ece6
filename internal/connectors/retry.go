package connectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-datasync/internal/syncerr"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff used for connectivity probes.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, BaseDelay: 200 * time.Millisecond}

// Retry runs op until it succeeds or the attempt budget is spent, doubling the
// delay between attempts. Configuration errors are not retried. Exhausted
// attempts surface as syncerr.ErrTransientIO.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		err := op(ctx)
		if err != nil && errors.Is(err, syncerr.ErrConfiguration) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(policy.Attempts-1)), ctx))

	if err == nil {
		return nil
	}
	if errors.Is(err, syncerr.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: gave up after %d attempt(s): %v", syncerr.ErrTransientIO, attempts, err)
}
