package connection

import (
	"math/rand"
	"time"
)

// Backoff defaults for opening the sensor link.
const (
	// InitialBackoff is the delay before the first retry.
	InitialBackoff = 200 * time.Millisecond

	// MaxBackoff caps the delay between retries.
	MaxBackoff = 5 * time.Second

	// BackoffMultiplier is the growth factor between retries.
	BackoffMultiplier = 2.0

	// JitterFactor is the default jitter as a fraction of the base delay.
	JitterFactor = 0.25
)

// BackoffConfig shapes the delay between open attempts. Zero fields fall back
// to the package defaults. A negative Jitter disables jitter.
type BackoffConfig struct {
	Initial    time.Duration `mapstructure:"initial" yaml:"initial"`
	Max        time.Duration `mapstructure:"max" yaml:"max"`
	Multiplier float64       `mapstructure:"multiplier" yaml:"multiplier"`
	Jitter     float64       `mapstructure:"jitter" yaml:"jitter"`
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	switch {
	case c.Jitter < 0:
		c.Jitter = 0
	case c.Jitter == 0:
		c.Jitter = JitterFactor
	}
	return c
}

// Base returns the delay before retry n (1-based) without jitter.
func (c BackoffConfig) Base(n int) time.Duration {
	c = c.withDefaults()
	d := float64(c.Initial)
	for i := 1; i < n && d < float64(c.Max); i++ {
		d *= c.Multiplier
	}
	return min(time.Duration(d), c.Max)
}

// Delay returns the delay before retry n: Base(n) plus up to Jitter*Base(n).
func (c BackoffConfig) Delay(n int) time.Duration {
	base := c.Base(n)
	jitter := c.withDefaults().Jitter
	if jitter == 0 {
		return base
	}
	return base + time.Duration(float64(base)*jitter*rand.Float64())
}
