package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Navneet-55/msmesolut/internal/store"
)

var (
	// ErrUnknownAgentType is returned when the requested type is not registered.
	ErrUnknownAgentType = errors.New("unknown agent type")
	// ErrPolicyDenied is returned when the access policy rejects the run.
	ErrPolicyDenied = errors.New("agent access denied by policy")
	// ErrInvalidInput is returned when the input fails the action's schema.
	ErrInvalidInput = errors.New("invalid agent input")
	// ErrCircuitOpen is returned while an agent is suspended after repeated
	// execution failures for the organization.
	ErrCircuitOpen = errors.New("agent temporarily suspended after repeated failures")
)

// UnknownActionError reports an input whose action the agent does not support.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return "unknown action: " + e.Action
}

// NotFoundError reports a tenant-scoped record that does not exist.
type NotFoundError struct {
	Entity string // "Ticket", "Lead", ...
	ID     string
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found"
}

// ExecutionError wraps any failure raised after the run record was created.
// RunID names the failed run.
type ExecutionError struct {
	RunID string
	Err   error
}

func (e *ExecutionError) Error() string {
	return "Agent execution failed: " + e.Err.Error()
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// lookupError turns a store miss into a *NotFoundError and wraps anything else.
func lookupError(entity, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("loading %s: %w", strings.ToLower(entity), err)
}

// callerError reports failures caused by the request rather than by the
// provider or the database. They do not count towards the circuit breaker.
func callerError(err error) bool {
	var unknown *UnknownActionError
	var missing *NotFoundError
	return errors.As(err, &unknown) || errors.As(err, &missing) || errors.Is(err, ErrInvalidInput)
}
