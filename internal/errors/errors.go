package errors

import (
	stderrors "errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	ErrCodeValidation    Code = "VALIDATION"
	ErrCodeStateConflict Code = "STATE_CONFLICT"
	ErrCodeConflict      Code = "CONFLICT" // optimistic-lock collision, client should retry
	ErrCodeNotFound      Code = "NOT_FOUND"
	ErrCodeUnauthorized  Code = "UNAUTHORIZED"
	ErrCodeInternal      Code = "INTERNAL"

	ErrCodeInsufficientUnlockedStake Code = "INSUFFICIENT_UNLOCKED_STAKE"
	ErrCodeInsufficientBondStake     Code = "INSUFFICIENT_BOND_STAKE"
	ErrCodeAlreadyVoted              Code = "ALREADY_VOTED"
	ErrCodeAlreadyExecuted           Code = "ALREADY_EXECUTED"
	ErrCodeDuplicateTranche          Code = "DUPLICATE_TRANCHE"
	ErrCodeOverRelease               Code = "OVER_RELEASE"
)

// Error is the typed error carried across service and repository layers.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a typed error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
// Returns nil when err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) error {
	return &Error{Code: ErrCodeValidation, Message: fmt.Sprintf("%s: %s", field, message)}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s '%s' not found", resource, id)}
}

// Conflict reports an optimistic-concurrency collision.
func Conflict(message string) error {
	return &Error{Code: ErrCodeConflict, Message: message}
}

// Unauthorized reports a failed authorization check.
func Unauthorized(message string) error {
	return &Error{Code: ErrCodeUnauthorized, Message: message}
}

// CodeOf extracts the Code from an error chain, defaulting to INTERNAL.
func CodeOf(err error) Code {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Code
	}
	return ErrCodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Code == code
	}
	return false
}
