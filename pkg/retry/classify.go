package retry

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"
)

// Kind is the retry classification of a failure.
type Kind int

const (
	KindFatal Kind = iota
	KindRetryable
)

func (k Kind) String() string {
	if k == KindRetryable {
		return "retryable"
	}
	return "fatal"
}

// Classifier maps a failure to a Kind.
type Classifier func(error) Kind

var (
	// ErrTransient marks failures that are expected to go away on their own
	// (network blips, broker back-pressure, lock contention).
	ErrTransient = errors.New("transient failure")
	// ErrTimeout is reported when an action exceeds its step timeout.
	ErrTimeout = errors.New("step timed out")
)

type classified struct {
	err  error
	kind Kind
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Retryable marks err as retryable regardless of the classifier.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, kind: KindRetryable}
}

// Fatal marks err as fatal regardless of the classifier.
func Fatal(err error) error {
	return backoff.Permanent(err)
}

// Classify returns the Kind of err under p. Explicit markers win over the
// policy classifier; without a classifier DefaultClassifier is used.
func Classify(p Policy, err error) Kind {
	var c *classified
	if errors.As(err, &c) {
		return c.kind
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return KindFatal
	}
	if p.Classifier != nil {
		return p.Classifier(err)
	}
	return DefaultClassifier(err)
}

// DefaultClassifier treats timeouts and transient failures as retryable and
// everything else as fatal.
func DefaultClassifier(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransient):
		return KindRetryable
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		return KindRetryable
	}
	return KindFatal
}
