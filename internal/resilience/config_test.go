package resilience

import (
	"testing"
	"time"

	"github.com/sells-group/vitals-cli/internal/config"
)

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxAttempts: 5, InitialBackoff: 100, MaxBackoff: 2000, Multiplier: 3, JitterFraction: 0.1})
	if p.MaxAttempts != 5 || p.InitialBackoff != 100*time.Millisecond || p.MaxBackoff != 2*time.Second {
		t.Errorf("unexpected policy: %+v", p)
	}

	d := PolicyFromConfig(config.RetryConfig{JitterFraction: -1})
	if d.MaxAttempts != 3 || d.InitialBackoff != 500*time.Millisecond {
		t.Errorf("expected defaults, got %+v", d)
	}
}

func TestBreakerFromConfig(t *testing.T) {
	bc := BreakerFromConfig(config.CircuitConfig{FailureThreshold: 4, ResetTimeoutSecs: 5})
	if bc.FailureThreshold != 4 || bc.ResetTimeout != 5*time.Second {
		t.Errorf("unexpected breaker config: %+v", bc)
	}

	bc = BreakerFromConfig(config.CircuitConfig{})
	if bc.FailureThreshold != 10 || bc.ResetTimeout != time.Minute {
		t.Errorf("expected defaults, got %+v", bc)
	}
}
