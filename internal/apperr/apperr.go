// Package apperr classifies failures of the alerting engine.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid administrative input (bad cron, unknown key).
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing rule, schedule or contact point.
	ErrNotFound = errors.New("not found")
	// ErrTransientSource marks an unreachable or timed out task source.
	ErrTransientSource = errors.New("task source unavailable")
	// ErrPersistence marks a failed store write other than a uniqueness conflict.
	ErrPersistence = errors.New("persistence error")
	// ErrSink marks a failed notification delivery.
	ErrSink = errors.New("notification delivery failed")
)

// Configf returns a configuration error with a user-facing message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// NotFoundf returns a not-found error with a user-facing message. An unknown
// key is also a configuration error.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrConfiguration, ErrNotFound, fmt.Sprintf(format, args...))
}

// Wrap tags err with kind, keeping both in the chain.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}
