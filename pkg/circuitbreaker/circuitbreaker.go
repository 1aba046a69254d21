package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOpen is returned without calling the wrapped function while the
// breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected
	StateHalfOpen              // a limited number of probe calls pass
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold    int           // consecutive failures before opening
	SuccessThreshold    int           // half-open successes before closing
	Timeout             time.Duration // open duration before probing
	MaxRequestsHalfOpen int
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("failure threshold must be > 0")
	}
	if c.SuccessThreshold <= 0 {
		return fmt.Errorf("success threshold must be > 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0")
	}
	if c.MaxRequestsHalfOpen <= 0 {
		return fmt.Errorf("max half-open requests must be > 0")
	}
	return nil
}

// Option customizes a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// WithStateChange registers a callback invoked after every transition.
// It runs synchronously, outside the breaker lock.
func WithStateChange(fn func(from, to State)) Option {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// CircuitBreaker stops calling a collaborator that keeps failing and
// probes it again after a timeout.
type CircuitBreaker struct {
	config Config
	now    func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	halfOpenInFlight int
	openedAt         time.Time

	onStateChange func(from, to State)
}

// New creates a new circuit breaker with the given configuration
func New(config Config, opts ...Option) *CircuitBreaker {
	if err := config.Validate(); err != nil {
		config = DefaultConfig()
	}
	cb := &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn unless the breaker is open. The error of fn is
// returned unchanged so callers can match on it.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	transition, err := cb.before()
	cb.notify(transition)
	if err != nil {
		return err
	}

	err = fn()
	cb.notify(cb.after(err == nil))
	return err
}

type stateTransition struct {
	from, to State
	changed  bool
}

func (cb *CircuitBreaker) before() (stateTransition, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var t stateTransition
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.config.Timeout {
			return t, ErrOpen
		}
		t = cb.setState(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenInFlight >= cb.config.MaxRequestsHalfOpen {
			return t, ErrOpen
		}
		cb.halfOpenInFlight++
	}
	return t, nil
}

func (cb *CircuitBreaker) after(success bool) stateTransition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if !success {
		cb.successes = 0
		cb.failures++
		if cb.state == StateHalfOpen ||
			(cb.state == StateClosed && cb.failures >= cb.config.FailureThreshold) {
			return cb.setState(StateOpen)
		}
		return stateTransition{}
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			return cb.setState(StateClosed)
		}
	}
	return stateTransition{}
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State) stateTransition {
	from := cb.state
	if from == to {
		return stateTransition{}
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	cb.halfOpenInFlight = 0
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	return stateTransition{from: from, to: to, changed: true}
}

func (cb *CircuitBreaker) notify(t stateTransition) {
	if t.changed && cb.onStateChange != nil {
		cb.onStateChange(t.from, t.to)
	}
}

// State returns the current state. An open breaker whose timeout has
// elapsed still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.setState(StateClosed)
	cb.mu.Unlock()
	cb.notify(t)
}
