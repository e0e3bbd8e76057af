package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrGapNotFound is returned for an unknown gap id.
	ErrGapNotFound = errors.New("gap not found")

	// ErrGapNotOpen is returned when resolving a gap that is already resolved.
	ErrGapNotOpen = errors.New("gap is not open")

	// ErrInvalidTransition is returned when a state change is not in the transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionTerminal is returned for operations on completed or failed sessions.
	ErrSessionTerminal = errors.New("session is in a terminal state")

	// ErrNotAwaitingClarification is returned when answering outside the clarification state.
	ErrNotAwaitingClarification = errors.New("session is not awaiting clarification")

	// ErrWorkerNotRegistered is returned when a phase names an unknown worker.
	ErrWorkerNotRegistered = errors.New("worker not registered")

	// ErrPhaseNotRegistered is returned when running an unknown phase.
	ErrPhaseNotRegistered = errors.New("phase not registered")

	// ErrEmptyResolution is returned when an answer or assumption has no text.
	ErrEmptyResolution = errors.New("resolution text is required")

	// ErrArtifactNotFound is returned for an unknown artifact id.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrUndeclaredOutput is returned when a worker writes a key outside its contract.
	ErrUndeclaredOutput = errors.New("worker wrote undeclared output key")
)

// BudgetExhaustedJustification is recorded on gaps force-assumed after the
// clarification round cap.
const BudgetExhaustedJustification = "clarification budget exhausted"

// InvalidInputError rejects a start request before any session exists.
type InvalidInputError struct {
	Reason string
	Err    error
}

func (e *InvalidInputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid input: %s: %v", e.Reason, e.Err)
	}
	return "invalid input: " + e.Reason
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// KeySchemaConflictError reports concurrent workers declaring the same output key.
type KeySchemaConflictError struct {
	Phase   string
	Key     string
	Workers []string
}

func (e *KeySchemaConflictError) Error() string {
	return fmt.Sprintf("key schema conflict in phase %s: key %q declared by %s",
		e.Phase, e.Key, strings.Join(e.Workers, ", "))
}

// WorkerError is the failure type of a worker run. Retryable errors are
// eligible for the scheduler's retry policy.
type WorkerError struct {
	Worker    string
	Retryable bool
	Err       error
}

func (e *WorkerError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	if e.Worker == "" {
		return fmt.Sprintf("%s worker error: %v", kind, e.Err)
	}
	return fmt.Sprintf("worker %s: %s error: %v", e.Worker, kind, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// Retryable wraps err as a retryable WorkerError.
func Retryable(err error) error {
	return &WorkerError{Retryable: true, Err: err}
}

// Fatal wraps err as a non-retryable WorkerError.
func Fatal(err error) error {
	return &WorkerError{Retryable: false, Err: err}
}

// PhaseError is the human-readable reason attached to a failed session.
type PhaseError struct {
	Phase  string
	Worker string
	Err    error
}

func (e *PhaseError) Error() string {
	if e.Worker != "" {
		return fmt.Sprintf("phase %s failed in worker %s: %v", e.Phase, e.Worker, e.Err)
	}
	return fmt.Sprintf("phase %s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
