// Package errors provides sentinel errors and wrapping utilities shared by
// all chargemon components.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Session lifecycle errors
	ErrNotLogging    = errors.New("no active logging session")
	ErrLoggerClosed  = errors.New("logger is closed")
	ErrSessionActive = errors.New("logging session still active")

	// File / report errors
	ErrNoSessions   = errors.New("no session files found")
	ErrEmptyFile    = errors.New("file contains no data rows")
	ErrMalformedRow = errors.New("malformed row")
	ErrBadHeader    = errors.New("unexpected header")

	// Protocol errors
	ErrPacketArity = errors.New("unexpected packet field count")
	ErrBadValue    = errors.New("unparseable packet value")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")
)

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsLifecycle returns true if err is a session lifecycle error.
func IsLifecycle(err error) bool {
	return errors.Is(err, ErrNotLogging) ||
		errors.Is(err, ErrLoggerClosed) ||
		errors.Is(err, ErrSessionActive)
}

// IsDataError returns true if err indicates unusable file or packet content.
func IsDataError(err error) bool {
	return errors.Is(err, ErrEmptyFile) ||
		errors.Is(err, ErrMalformedRow) ||
		errors.Is(err, ErrBadHeader) ||
		errors.Is(err, ErrPacketArity) ||
		errors.Is(err, ErrBadValue)
}

// IsValidation returns true if err is a configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}
