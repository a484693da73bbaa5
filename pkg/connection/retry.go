package connection

import (
	"context"
	"time"
)

// Policy bounds how often an open request is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first one.
	// Values below 1 mean a single attempt.
	MaxAttempts int `mapstructure:"max_attempts" yaml:"max_attempts"`

	// Backoff configures the delay between attempts.
	Backoff BackoffConfig `mapstructure:",squash" yaml:",inline"`
}

// Enabled reports whether the policy allows more than one attempt.
func (p Policy) Enabled() bool {
	return p.MaxAttempts > 1
}

// Attempt is a single try of an operation.
type Attempt func(ctx context.Context) error

// Retry runs fn until it succeeds, returns an error that retryable rejects,
// the policy is exhausted or ctx is done. It returns the number of attempts
// made and the last error. onRetry, if non-nil, is called before each wait.
func Retry(ctx context.Context, p Policy, retryable func(error) bool, onRetry func(attempt int, delay time.Duration, err error), fn Attempt) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return attempt, nil
		}
		if attempt >= maxAttempts || (retryable != nil && !retryable(err)) {
			return attempt, err
		}

		delay := p.Backoff.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
}
