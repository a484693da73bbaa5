package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDefaultSequence(t *testing.T) {
	want := []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		MaxBackoff,
		MaxBackoff,
	}
	var cfg BackoffConfig
	for i, d := range want {
		assert.Equal(t, d, cfg.Base(i+1), "retry %d", i+1)
	}
}

func TestBackoffCustom(t *testing.T) {
	cfg := BackoffConfig{
		Initial:    10 * time.Millisecond,
		Max:        50 * time.Millisecond,
		Multiplier: 2,
		Jitter:     -1,
	}
	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		50 * time.Millisecond,
		50 * time.Millisecond,
	}
	for i, d := range want {
		assert.Equal(t, d, cfg.Delay(i+1), "retry %d", i+1)
	}
}

func TestBackoffJitterBounded(t *testing.T) {
	cfg := BackoffConfig{Initial: 100 * time.Millisecond, Jitter: 0.5}
	for i := 0; i < 20; i++ {
		d := cfg.Delay(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}

	var def BackoffConfig
	for i := 0; i < 20; i++ {
		d := def.Delay(2)
		assert.GreaterOrEqual(t, d, 400*time.Millisecond)
		assert.LessOrEqual(t, d, 500*time.Millisecond)
	}
}

var errRefused = errors.New("refused")

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		Backoff:     BackoffConfig{Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2},
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retries []int

	n, err := Retry(context.Background(), fastPolicy(5), nil,
		func(attempt int, _ time.Duration, _ error) { retries = append(retries, attempt) },
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errRefused
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryExhausted(t *testing.T) {
	n, err := Retry(context.Background(), fastPolicy(3), nil, nil,
		func(context.Context) error { return errRefused })

	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 3, n)
}

func TestRetryZeroPolicyIsSingleAttempt(t *testing.T) {
	assert.False(t, Policy{}.Enabled())

	n, err := Retry(context.Background(), Policy{}, nil, nil,
		func(context.Context) error { return errRefused })

	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 1, n)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad address")
	n, err := Retry(context.Background(), fastPolicy(5),
		func(err error) bool { return errors.Is(err, errRefused) }, nil,
		func(context.Context) error { return permanent })

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, n)
}

func TestRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, Backoff: BackoffConfig{Initial: time.Hour}}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	n, err := Retry(ctx, p, nil, nil, func(context.Context) error { return errRefused })
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 1, n)
	assert.Less(t, time.Since(start), time.Second)
}
