package service

import (
	"context"
	"time"

	"live-session-service/internal/response"
)

// RetryPolicy retries transport failures with linear backoff.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are used up. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !response.IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * p.Backoff):
		}
	}
	return err
}
