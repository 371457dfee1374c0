package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		MaxAttempts:       5,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func TestNewPolicy_ValidConfig(t *testing.T) {
	_, err := NewPolicy(validConfig())
	assert.NoError(t, err)
}

func TestNewPolicy_RejectsInvalidConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero base delay", func(c *Config) { c.BaseDelay = 0 }},
		{"max delay below base", func(c *Config) { c.MaxDelay = 50 * time.Millisecond }},
		{"max delay equals base", func(c *Config) { c.MaxDelay = c.BaseDelay }},
		{"multiplier of one", func(c *Config) { c.BackoffMultiplier = 1.0 }},
		{"multiplier below one", func(c *Config) { c.BackoffMultiplier = 0.5 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			_, err := NewPolicy(cfg)
			assert.Error(t, err)
		})
	}
}

func TestPolicy_ExponentialBackoffWithoutJitter(t *testing.T) {
	policy, err := NewPolicy(Config{
		MaxAttempts:       5,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	})
	require.NoError(t, err)

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
	}
	for i, want := range expected {
		assert.Equal(t, want, policy.Delay(i+1), "attempt %d", i+1)
	}
}

func TestPolicy_DelayCappedAtMax(t *testing.T) {
	policy, err := NewPolicy(Config{
		MaxAttempts:       10,
		BaseDelay:         time.Second,
		MaxDelay:          3 * time.Second,
		BackoffMultiplier: 3.0,
		Jitter:            false,
	})
	require.NoError(t, err)

	for attempt := 1; attempt <= 10; attempt++ {
		assert.LessOrEqual(t, policy.Delay(attempt), 3*time.Second)
	}
	assert.Equal(t, 3*time.Second, policy.Delay(10))
}

func TestPolicy_ShouldRetry(t *testing.T) {
	for _, maxAttempts := range []int{1, 3, 7} {
		cfg := validConfig()
		cfg.MaxAttempts = maxAttempts
		policy, err := NewPolicy(cfg)
		require.NoError(t, err)

		for attempts := 0; attempts < maxAttempts; attempts++ {
			assert.True(t, policy.ShouldRetry(attempts), "attempts=%d max=%d", attempts, maxAttempts)
		}
		assert.False(t, policy.ShouldRetry(maxAttempts))
		assert.False(t, policy.ShouldRetry(maxAttempts+1))
	}
}

func TestPolicy_JitterBounds(t *testing.T) {
	policy, err := NewPolicy(Config{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	})
	require.NoError(t, err)

	floor := 250 * time.Millisecond
	seen := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		d := policy.Delay(1)
		assert.GreaterOrEqual(t, d, floor, "jittered delay below quarter-base floor")
		assert.LessOrEqual(t, d, time.Second)
		seen[d] = true
	}
	assert.Greater(t, len(seen), 1, "jitter should vary the delay")
}

func TestPolicy_NextAttemptDelay(t *testing.T) {
	policy, err := NewPolicy(Config{
		MaxAttempts:       3,
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            false,
	})
	require.NoError(t, err)

	d, ok := policy.NextAttemptDelay(1)
	require.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, d)

	_, ok = policy.NextAttemptDelay(3)
	assert.False(t, ok, "exhausted budget must not yield a delay")
}
