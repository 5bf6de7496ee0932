package agent

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the circuit breaker state.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal: runs flow through
	CircuitOpen                         // Tripped: runs rejected before a record is created
	CircuitHalfOpen                     // one trial run allowed to test recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// CircuitBreaker counts execution failures per organization and agent type
// and opens the circuit when they reach the threshold within a window.
// Caller errors (unknown action, missing entity, invalid input) are not
// counted; only provider and persistence failures are.
type CircuitBreaker struct {
	mu        sync.Mutex
	circuits  map[string]*circuit
	threshold int
	window    time.Duration
}

type circuit struct {
	failures      []time.Time
	state         CircuitState
	openedAt      time.Time
	trialInFlight bool // half-open admits a single run until RecordSuccess/RecordFailure
}

// NewCircuitBreaker creates a circuit breaker.
// threshold: failures in window that trip the circuit (default 5).
// window: sliding window, also the cool-down before a trial run (default 60s).
func NewCircuitBreaker(threshold int, window time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &CircuitBreaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		window:    window,
	}
}

func circuitKey(organizationID string, t Type) string {
	return organizationID + ":" + string(t)
}

// Check returns nil when a run may proceed and an ErrCircuitOpen error
// otherwise. After the cool-down the first caller becomes the trial run.
func (cb *CircuitBreaker) Check(organizationID string, t Type) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[circuitKey(organizationID, t)]
	if !ok {
		return nil
	}

	switch c.state {
	case CircuitOpen:
		if time.Since(c.openedAt) > cb.window {
			c.state = CircuitHalfOpen
			c.trialInFlight = true
			return nil
		}
		return fmt.Errorf("%w: %s", ErrCircuitOpen, t)
	case CircuitHalfOpen:
		if c.trialInFlight {
			return fmt.Errorf("%w: %s trial run in progress", ErrCircuitOpen, t)
		}
		c.trialInFlight = true
		return nil
	case CircuitClosed:
	}
	return nil
}

// RecordFailure records a failed run. A failed trial run reopens the circuit
// immediately.
func (cb *CircuitBreaker) RecordFailure(organizationID string, t Type) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	key := circuitKey(organizationID, t)
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{}
		cb.circuits[key] = c
	}

	now := time.Now()
	if c.state == CircuitHalfOpen {
		c.state = CircuitOpen
		c.openedAt = now
		c.trialInFlight = false
		return
	}

	cutoff := now.Add(-cb.window)
	c.failures = append(filterAfter(c.failures, cutoff), now)
	if len(c.failures) >= cb.threshold {
		c.state = CircuitOpen
		c.openedAt = now
	}
}

// RecordSuccess records a run that did not fail on the provider side. A
// successful trial run closes the circuit.
func (cb *CircuitBreaker) RecordSuccess(organizationID string, t Type) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[circuitKey(organizationID, t)]
	if !ok {
		return
	}
	if c.state == CircuitHalfOpen {
		c.state = CircuitClosed
		c.failures = nil
		c.trialInFlight = false
	}
}

// Release frees the trial slot of a half-open circuit when the admitted run
// ended before reaching the agent. The circuit stays half-open so the next
// caller becomes the trial run.
func (cb *CircuitBreaker) Release(organizationID string, t Type) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if c, ok := cb.circuits[circuitKey(organizationID, t)]; ok && c.state == CircuitHalfOpen {
		c.trialInFlight = false
	}
}

// Reset forgets the circuit (operator override).
func (cb *CircuitBreaker) Reset(organizationID string, t Type) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.circuits, circuitKey(organizationID, t))
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State(organizationID string, t Type) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c, ok := cb.circuits[circuitKey(organizationID, t)]
	if !ok {
		return CircuitClosed
	}
	return c.state
}

func filterAfter(times []time.Time, cutoff time.Time) []time.Time {
	var result []time.Time
	for _, t := range times {
		if t.After(cutoff) {
			result = append(result, t)
		}
	}
	return result
}
