// Package retry computes backoff delays and retry/terminal decisions for
// failed jobs. The policy is a pure function of the attempt count and its
// configuration; applying the delay (sleeping, scheduling a redelivery) is
// the caller's business.
package retry

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config tunes the backoff policy. All four numeric invariants are checked
// at policy construction; an invalid combination is a configuration error,
// never a runtime panic.
type Config struct {
	// MaxAttempts is the total delivery budget per job. Must be > 0.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Must be > 0.
	BaseDelay time.Duration

	// MaxDelay caps the computed delay. Must be > BaseDelay.
	MaxDelay time.Duration

	// BackoffMultiplier is the exponential growth factor. Must be > 1.0.
	BackoffMultiplier float64

	// Jitter randomizes the final delay to avoid synchronized retry storms.
	Jitter bool
}

// DefaultConfig mirrors the worker's production tuning.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Policy decides whether and when a failed job is retried.
type Policy struct {
	config Config
}

// NewPolicy validates the configuration and returns a policy. Construction
// fails fast rather than producing a policy that silently misbehaves.
func NewPolicy(config Config) (*Policy, error) {
	if config.MaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid retry config: max attempts must be > 0, got %d", config.MaxAttempts)
	}
	if config.BaseDelay <= 0 {
		return nil, fmt.Errorf("invalid retry config: base delay must be > 0, got %s", config.BaseDelay)
	}
	if config.MaxDelay <= config.BaseDelay {
		return nil, fmt.Errorf("invalid retry config: max delay %s must be > base delay %s", config.MaxDelay, config.BaseDelay)
	}
	if config.BackoffMultiplier <= 1.0 {
		return nil, fmt.Errorf("invalid retry config: backoff multiplier must be > 1.0, got %g", config.BackoffMultiplier)
	}
	return &Policy{config: config}, nil
}

// Config returns the validated configuration.
func (p *Policy) Config() Config {
	return p.config
}

// ShouldRetry reports whether a job with the given delivery count still has
// retry budget left.
func (p *Policy) ShouldRetry(attempts int) bool {
	return attempts < p.config.MaxAttempts
}

// Delay computes the backoff before the given attempt (1-based):
//
//	delay = min(maxDelay, baseDelay * multiplier^(attempt-1))
//
// With jitter enabled the result is drawn uniformly from the computed delay
// down to a floor of a quarter of the base delay, so retries are spread out
// but never instantaneous.
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	multiplier := math.Pow(p.config.BackoffMultiplier, float64(attempt-1))
	millis := float64(p.config.BaseDelay.Milliseconds()) * multiplier
	millis = math.Min(millis, float64(p.config.MaxDelay.Milliseconds()))

	delay := time.Duration(millis) * time.Millisecond
	if p.config.Jitter {
		delay = p.jitter(delay)
	}
	return delay
}

// jitter draws a full-jitter delay in [baseDelay/4, delay].
func (p *Policy) jitter(delay time.Duration) time.Duration {
	jittered := rand.Float64() * float64(delay.Milliseconds())

	floor := math.Max(float64(p.config.BaseDelay.Milliseconds())*0.25, 1)
	jittered = math.Max(jittered, floor)

	return time.Duration(jittered) * time.Millisecond
}

// NextAttemptDelay returns the delay before the next delivery of a job that
// has already been attempted `attempts` times, or false when the budget is
// exhausted. Callers interpret false as "route to dead letter", never as
// "retry with zero delay".
func (p *Policy) NextAttemptDelay(attempts int) (time.Duration, bool) {
	if !p.ShouldRetry(attempts) {
		return 0, false
	}
	return p.Delay(attempts + 1), true
}
