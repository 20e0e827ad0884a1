package resilience

import (
	"time"

	"github.com/sells-group/vitals-cli/internal/config"
)

// PolicyFromConfig builds a RetryPolicy from config values, keeping
// defaults for unset fields.
func PolicyFromConfig(c config.RetryConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoff > 0 {
		p.InitialBackoff = time.Duration(c.InitialBackoff) * time.Millisecond
	}
	if c.MaxBackoff > 0 {
		p.MaxBackoff = time.Duration(c.MaxBackoff) * time.Millisecond
	}
	if c.Multiplier > 0 {
		p.Multiplier = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		p.JitterFraction = c.JitterFraction
	}
	return p
}

// BreakerFromConfig builds a BreakerConfig from config values.
func BreakerFromConfig(c config.CircuitConfig) BreakerConfig {
	bc := BreakerConfig{FailureThreshold: 10, ResetTimeout: time.Minute}
	if c.FailureThreshold > 0 {
		bc.FailureThreshold = c.FailureThreshold
	}
	if c.ResetTimeoutSecs > 0 {
		bc.ResetTimeout = time.Duration(c.ResetTimeoutSecs) * time.Second
	}
	return bc
}
