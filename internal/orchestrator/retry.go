package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often a failed worker invocation is retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Jitter is the backoff randomization factor in [0, 1).
	Jitter float64
}

// DefaultRetryPolicy returns 2 retries with exponential backoff from 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.1,
	}
}

func (p RetryPolicy) maxTries() uint {
	if p.MaxRetries < 0 {
		return 1
	}
	return uint(p.MaxRetries) + 1
}

func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	return b
}

// retryable is implemented by errors from the model invocation layer.
type retryable interface {
	Retryable() bool
}

// classify maps an attempt error onto a WorkerError.
//
// parent is the invocation context and attempt the per-attempt context
// carrying the worker timeout. A timed-out attempt is retryable; an
// unclassified error is not.
func classify(worker string, err error, parent, attempt context.Context) *WorkerError {
	var we *WorkerError
	if errors.As(err, &we) {
		return &WorkerError{Worker: worker, Retryable: we.Retryable, Err: we.Err}
	}

	var r retryable
	if errors.As(err, &r) {
		return &WorkerError{Worker: worker, Retryable: r.Retryable(), Err: err}
	}

	if parent.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(attempt.Err(), context.DeadlineExceeded)) {
		return &WorkerError{Worker: worker, Retryable: true, Err: err}
	}

	return &WorkerError{Worker: worker, Retryable: false, Err: err}
}
