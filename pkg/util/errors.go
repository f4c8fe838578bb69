// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrNotConnected        = errors.New("device not connected")
	ErrDeviceLocked        = errors.New("device locked by another holder")
	ErrDeviceCommunication = errors.New("device communication failure")
	ErrMalformedInput      = errors.New("malformed input")
	ErrNotReady            = errors.New("resource not ready")
	ErrInvalidConfig       = errors.New("invalid configuration")
	ErrValidationFailed    = errors.New("validation failed")
)

// MalformedInputError reports a required attribute missing from a router or
// port snapshot. It is never retried: the upstream state itself is wrong.
type MalformedInputError struct {
	Resource string // e.g. "port 5e1c..."
	Key      string // missing or invalid attribute
	Details  string
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("malformed input for %s: %s", e.Resource, e.Key)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error {
	return ErrMalformedInput
}

// NewMalformedInputError creates a new malformed input error
func NewMalformedInputError(resource, key, details string) *MalformedInputError {
	return &MalformedInputError{
		Resource: resource,
		Key:      key,
		Details:  details,
	}
}

// NotReadyError reports input that has not propagated yet (e.g. HA metadata
// for an HA-enabled router). The router should be re-queued.
type NotReadyError struct {
	Router string
	Port   string
	Reason string
}

func (e *NotReadyError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("router %s port %s not ready: %s", e.Router, e.Port, e.Reason)
	}
	return fmt.Sprintf("router %s not ready: %s", e.Router, e.Reason)
}

func (e *NotReadyError) Unwrap() error {
	return ErrNotReady
}

// NewNotReadyError creates a new not-ready error
func NewNotReadyError(router, port, reason string) *NotReadyError {
	return &NotReadyError{
		Router: router,
		Port:   port,
		Reason: reason,
	}
}

// IsRetryable reports whether err, or any error it joins, should cause the
// event to be re-queued. A joined error may also carry malformed input for
// other ports; those parts fail again on each attempt but do not stop the
// retryable ones from being retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNotReady) ||
		errors.Is(err, ErrDeviceCommunication) ||
		errors.Is(err, ErrDeviceLocked)
}

// FatalParts returns the members of a joined error that carry malformed
// input. A non-joined fatal error is returned as is.
func FatalParts(err error) []error {
	if !IsFatal(err) {
		return nil
	}
	j, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var parts []error
	for _, e := range j.Unwrap() {
		parts = append(parts, FatalParts(e)...)
	}
	return parts
}

// IsFatal reports whether err carries malformed input.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "validation failed: " + e.Errors[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error from messages
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Errors: messages}
}

// ValidationBuilder helps accumulate validation errors
type ValidationBuilder struct {
	errors []string
}

// Add adds an error message if condition is false
func (v *ValidationBuilder) Add(condition bool, message string) *ValidationBuilder {
	if !condition {
		v.errors = append(v.errors, message)
	}
	return v
}

// AddErrorf adds a formatted error message
func (v *ValidationBuilder) AddErrorf(format string, args ...interface{}) *ValidationBuilder {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
	return v
}

// HasErrors returns true if there are validation errors
func (v *ValidationBuilder) HasErrors() bool {
	return len(v.errors) > 0
}

// Build returns the validation error or nil if no errors
func (v *ValidationBuilder) Build() error {
	if len(v.errors) == 0 {
		return nil
	}
	return &ValidationError{Errors: v.errors}
}
