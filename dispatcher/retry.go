package dispatcher

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"

	"github.com/stratoform/controlplane/orcherr"
)

// maxTransientAttempts caps the bounded exponential backoff spec.md §7
// mandates for SubstrateTransient errors ("cap ≈5 attempts").
const maxTransientAttempts = 5

// withTransientRetry retries op only while it fails with a
// SubstrateTransient error; any other error (or a Kind the caller marks
// non-retryable) returns immediately. Once the attempt cap is exhausted the
// last error is returned so the caller can surface it as a 503.
func withTransientRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	wrapped := func() (T, error) {
		v, err := op()
		if err == nil {
			return v, nil
		}
		var oe orcherr.OpsOrchError
		if errors.As(err, &oe) && oe.Retryable() {
			return v, err
		}
		return v, backoff.Permanent(err)
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTransientAttempts),
	)
}
