package resilience

import "time"

// Breaker presets. Inference calls carry several images and can take minutes, so the slow
// preset tolerates more failures and waits longer before probing again.
const (
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 2

	SlowThreshold         = 8
	SlowResetTimeout      = 90 * time.Second
	SlowHalfOpenSuccesses = 1
)

// Config describes one breaker. Zero fields take the defaults.
type Config struct {
	Name              string        // dependency label for logs and metrics
	Threshold         int           // consecutive failures that open the circuit
	ResetTimeout      time.Duration // how long the circuit stays open before a probe
	HalfOpenSuccesses int           // probe successes that close it again
}

// DefaultConfig suits short calls such as health checks.
func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, ResetTimeout: DefaultResetTimeout, HalfOpenSuccesses: DefaultHalfOpenSuccesses}
}

// SlowConfig suits inference requests.
func SlowConfig() Config {
	return Config{Threshold: SlowThreshold, ResetTimeout: SlowResetTimeout, HalfOpenSuccesses: SlowHalfOpenSuccesses}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = d.HalfOpenSuccesses
	}
	return c
}
