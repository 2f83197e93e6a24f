package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the configuration subsystem so callers can
// decide how to degrade (show "feature unavailable", a validation message, ...).
type ErrorKind string

const (
	// KindConfigurationMissing means a destination or credential is not configured.
	KindConfigurationMissing ErrorKind = "ConfigurationMissing"

	// KindNotFound means a local file, remote object or config key is absent.
	KindNotFound ErrorKind = "NotFound"

	// KindValidationFailed means an update was rejected by a value rule.
	KindValidationFailed ErrorKind = "ValidationFailed"

	// KindPermissionDenied means a protected key was targeted.
	KindPermissionDenied ErrorKind = "PermissionDenied"

	// KindIntegrityMismatch means checksum verification failed.
	KindIntegrityMismatch ErrorKind = "IntegrityMismatch"

	// KindTransferFailed means a network or storage failure during a transfer.
	KindTransferFailed ErrorKind = "TransferFailed"

	// KindRollbackFailed means the live store could not be put back after a
	// failed restore. Data loss is possible.
	KindRollbackFailed ErrorKind = "RollbackFailed"
)

// Sentinels usable with errors.Is.
var (
	ErrConfigurationMissing = &Error{Kind: KindConfigurationMissing}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrValidationFailed     = &Error{Kind: KindValidationFailed}
	ErrPermissionDenied     = &Error{Kind: KindPermissionDenied}
	ErrIntegrityMismatch    = &Error{Kind: KindIntegrityMismatch}
	ErrTransferFailed       = &Error{Kind: KindTransferFailed}
	ErrRollbackFailed       = &Error{Kind: KindRollbackFailed}
)

// Error is the structured error returned by every public operation.
type Error struct {
	Kind ErrorKind
	// Op is the public operation, e.g. "upload" or "restore".
	Op string
	// Step names the stage that failed (search, snapshot, fetch, verify, decode, commit, rollback).
	Step    string
	Message string
	Err     error
}

// Error returns the error message.
func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Step != "" {
		prefix += " at " + e.Step
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return prefix
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind so errors.Is(err, types.ErrNotFound) works for any
// NotFound error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Detail returns the human-readable reason without the kind prefix. It is
// what validation callers display next to an input field.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// WrapError wraps cause with a kind and operation.
func WrapError(kind ErrorKind, op string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: cause}
}

// NewValidationError creates a ValidationFailed error carrying the rule that was violated.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidationFailed, Op: "update", Message: message}
}

// IsValidationError checks if an error is a ValidationFailed error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StepOf returns the failed step recorded in err, if any.
func StepOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Step
	}
	return ""
}
