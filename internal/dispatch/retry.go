package dispatch

import (
	"context"
	"time"
)

// RetryPolicy bounds caller-side retries of retryable publish failures.
// PerAttemptTimeout, when set, caps each individual send; an attempt that
// hits it fails retryable.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	PerAttemptTimeout time.Duration
}

// DefaultRetryPolicy retries twice after the initial attempt with short
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, PerAttemptTimeout: 10 * time.Second}
}

// Retry publishes req, retrying only retryable failures with exponential
// backoff. Permanent failures and context expiry end the loop immediately.
// The publisher itself still makes exactly one send attempt per call; this
// helper is the caller-side policy around it.
func Retry(ctx context.Context, p *Publisher, req Request, policy RetryPolicy) (string, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	delay := policy.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		id, err := publishOnce(ctx, p, req, policy.PerAttemptTimeout)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !Retryable(err) {
			return "", err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", &PublishError{Retryable: true, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}
	return "", lastErr
}

func publishOnce(ctx context.Context, p *Publisher, req Request, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.Publish(ctx, req)
}
