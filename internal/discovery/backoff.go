package discovery

import (
	"math"
	"time"
)

// Default reconnect policy for push subscriptions.
const (
	DefaultInitialDelay = 1000 * time.Millisecond
	DefaultMaxDelay     = 30000 * time.Millisecond
	DefaultMultiplier   = 1.5
	DefaultMaxAttempts  = 10
)

// BackoffConfig controls the reconnect delay of a subscription.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultBackoffConfig returns 1s initial delay growing by 1.5x up to 30s,
// giving up after 10 consecutive failures.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
		MaxAttempts:  DefaultMaxAttempts,
	}
}

// withDefaults fills unset or invalid fields from DefaultBackoffConfig.
func (c BackoffConfig) withDefaults() BackoffConfig {
	d := DefaultBackoffConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = max(d.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	return c
}

// Backoff counts consecutive failures and yields the delay before the
// next attempt. It is not safe for concurrent use; each subscription owns
// its own.
type Backoff struct {
	cfg      BackoffConfig
	attempts int
}

// NewBackoff returns a Backoff in its initial state.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg.withDefaults()}
}

// Next records a failure and returns the delay before retrying. It returns
// false once MaxAttempts retries have been handed out without a Reset.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempts >= b.cfg.MaxAttempts {
		return 0, false
	}
	d := b.Delay()
	b.attempts++
	return d, true
}

// Delay returns the delay Next would hand out without consuming an attempt.
func (b *Backoff) Delay() time.Duration {
	d := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(b.attempts))
	if d >= float64(b.cfg.MaxDelay) {
		return b.cfg.MaxDelay
	}
	return time.Duration(d)
}

// Attempts returns the number of retries handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Reset returns the counter and delay to their initial values.
func (b *Backoff) Reset() {
	b.attempts = 0
}
