package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRenewalFailed is returned when no valid token could be produced for a scope.
	ErrRenewalFailed = errors.New("token renewal failed")

	// ErrAuthorizationRejected is returned when a freshly renewed token is rejected again.
	ErrAuthorizationRejected = errors.New("authorization rejected after renewal")

	// ErrTransient is returned when a request kept failing with server errors or timeouts.
	ErrTransient = errors.New("transient upstream failure")

	// ErrNotFound is a valid negative result of a lookup.
	ErrNotFound = errors.New("not found")

	// ErrNoToken aborts a sync run that could not obtain a token up front.
	ErrNoToken = errors.New("no valid token available")
)

// ConfigurationError is a fatal startup error: the process cannot run with the given configuration.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigurationError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil returns nil when no problem was recorded.
func (e *ConfigurationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// RenewalError tells which step of a login flow failed.
type RenewalError struct {
	Carrier string
	Step    string
	Err     error
}

func (e *RenewalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s renewal failed at %s", e.Carrier, e.Step)
	}
	return fmt.Sprintf("%s renewal failed at %s: %v", e.Carrier, e.Step, e.Err)
}

func (e *RenewalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRenewalFailed}
	}
	return []error{ErrRenewalFailed, e.Err}
}

// StatusError carries the upstream HTTP status of a failed request.
type StatusError struct {
	StatusCode int
	Body       string
	Wrapped    error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d: %v", e.StatusCode, e.Wrapped)
	}
	return fmt.Sprintf("upstream status %d: %v: %s", e.StatusCode, e.Wrapped, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Wrapped
}
