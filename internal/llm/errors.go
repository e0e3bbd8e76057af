package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrNoModel is returned when a model is required but none is configured.
var ErrNoModel = errors.New("no model configured")

// TransientError is a model failure that may succeed when retried.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient model error (%d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient model error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Retryable reports true.
func (e *TransientError) Retryable() bool { return true }

// FatalError is a model failure that retrying will not fix.
type FatalError struct {
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fatal model error (%d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fatal model error: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Retryable reports false.
func (e *FatalError) Retryable() bool { return false }

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// statusError maps an HTTP status onto the error taxonomy.
func statusError(status int, err error) error {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500 {
		return &TransientError{StatusCode: status, Err: err}
	}
	return &FatalError{StatusCode: status, Err: err}
}

// transportError classifies a failure to reach the provider. Cancellation by
// the caller is returned unchanged.
func transportError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return err
	}
	return &TransientError{Err: fmt.Errorf("request failed: %w", err)}
}
