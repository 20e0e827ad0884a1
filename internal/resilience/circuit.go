// Package resilience provides the circuit breaker guarding the audit API and
// the retry policy applied to spreadsheet writes.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets a probe through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive tripping failures that
	// opens the circuit.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe is allowed.
	ResetTimeout time.Duration

	// ShouldTrip decides whether an error counts as a failure. Nil counts
	// every non-nil error.
	ShouldTrip func(err error) bool

	// OnStateChange is called with the breaker lock held; keep it cheap.
	OnStateChange func(from, to CircuitState)
}

// Breaker is a consecutive-failure circuit breaker for one upstream service.
type Breaker struct {
	cfg   BreakerConfig
	mu    sync.Mutex
	state CircuitState

	failures int
	openedAt time.Time

	nowFunc func() time.Time
}

// NewBreaker creates a closed circuit breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 10
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = time.Minute
	}
	return &Breaker{
		cfg:     cfg,
		state:   CircuitClosed,
		nowFunc: time.Now,
	}
}

// Call runs fn through the breaker and returns its value. It returns
// ErrCircuitOpen without calling fn while the circuit is open.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen && b.nowFunc().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitOpen {
		return nil
	}
	if b.nowFunc().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.transition(CircuitHalfOpen)
		return nil
	}
	return ErrCircuitOpen
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trip := err != nil
	if trip && b.cfg.ShouldTrip != nil {
		trip = b.cfg.ShouldTrip(err)
	}

	if !trip {
		b.failures = 0
		if b.state == CircuitHalfOpen {
			b.transition(CircuitClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case CircuitHalfOpen:
		b.openedAt = b.nowFunc()
		b.transition(CircuitOpen)
	case CircuitClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.nowFunc()
			b.transition(CircuitOpen)
		}
	}
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
