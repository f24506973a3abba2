package providers

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

const maxRetryWindow = 2 * time.Minute

// Backoff builds the exponential backoff used by the HTTP adapters. A
// non-positive MaxRetries disables retries.
func Backoff(cfg ProviderConfig) retry.Backoff {
	base := cfg.RetryDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	backoff := retry.NewExponential(base)
	backoff = retry.WithJitter(base/4, backoff)
	backoff = retry.WithMaxDuration(maxRetryWindow, backoff)
	return retry.WithMaxRetries(uint64(retries), backoff)
}

// Do runs fn under the configured backoff. Only errors marked retryable by
// IsRetryable are attempted again.
func Do(ctx context.Context, cfg ProviderConfig, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, Backoff(cfg), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
