package sefaz

import (
	"sync"
	"time"
)

// BreakerState is the position of the circuit between the client and one
// SEFAZ authorizer.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerError is returned when a request is refused without touching the
// network because the authorizer is considered down.
type BreakerError struct {
	Authorizer string
}

func (e *BreakerError) Error() string {
	return "circuit open for authorizer " + e.Authorizer
}

// CircuitBreaker keeps one circuit per authorizer. SEFAZ schedules per-state
// maintenance windows, so RS being down must not stop traffic to SP.
type CircuitBreaker struct {
	maxFailures      int
	cooldown         time.Duration
	successThreshold int

	mu       sync.Mutex
	circuits map[string]*circuit
}

type circuit struct {
	state           BreakerState
	failures        int
	successes       int
	lastStateChange time.Time
}

// NewCircuitBreaker returns a breaker that opens an authorizer's circuit
// after maxFailures consecutive failures and probes it again after cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		maxFailures:      maxFailures,
		cooldown:         cooldown,
		successThreshold: 2,
		circuits:         make(map[string]*circuit),
	}
}

// Allow reports whether a request to the authorizer may proceed. An open
// circuit past its cooldown moves to half-open and lets a probe through.
func (cb *CircuitBreaker) Allow(authorizer string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuit(authorizer)
	switch c.state {
	case BreakerOpen:
		if time.Since(c.lastStateChange) < cb.cooldown {
			return &BreakerError{Authorizer: authorizer}
		}
		c.state = BreakerHalfOpen
		c.successes = 0
		c.lastStateChange = time.Now()
	}
	return nil
}

// Record feeds the result of a request back into the authorizer's circuit.
// Only transport-level failures should be recorded as failures: a fiscal
// rejection is a healthy conversation.
func (cb *CircuitBreaker) Record(authorizer string, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuit(authorizer)
	if failed {
		c.failures++
		if c.state == BreakerHalfOpen || c.failures >= cb.maxFailures {
			c.state = BreakerOpen
			c.lastStateChange = time.Now()
		}
		return
	}

	switch c.state {
	case BreakerHalfOpen:
		c.successes++
		if c.successes >= cb.successThreshold {
			c.state = BreakerClosed
			c.failures = 0
			c.lastStateChange = time.Now()
		}
	case BreakerClosed:
		c.failures = 0
	}
}

// State returns the current state of an authorizer's circuit.
func (cb *CircuitBreaker) State(authorizer string) BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.circuit(authorizer).state
}

func (cb *CircuitBreaker) circuit(authorizer string) *circuit {
	c, ok := cb.circuits[authorizer]
	if !ok {
		c = &circuit{state: BreakerClosed, lastStateChange: time.Now()}
		cb.circuits[authorizer] = c
	}
	return c
}
