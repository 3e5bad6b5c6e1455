package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain errors. The set is closed: callers switch on it
// to decide between rejecting, retrying, or escalating to an operator.
type ErrorKind string

const (
	// KindValidation rejects a request before any write happens
	KindValidation ErrorKind = "VALIDATION"
	// KindConflict signals contention that a retry may resolve
	KindConflict ErrorKind = "CONFLICT"
	// KindNotFound signals a missing or foreign resource
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindIntegrity signals a broken invariant that needs operator attention
	KindIntegrity ErrorKind = "INTEGRITY"
	// KindUnavailable signals a dependency outage
	KindUnavailable ErrorKind = "UNAVAILABLE"
	// KindInternal is used for anything unclassified
	KindInternal ErrorKind = "INTERNAL"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind      `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DomainError with the same kind and code.
// It lets package-level sentinels match errors enriched with details.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithDetail returns a copy of the error carrying an extra detail entry
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// WithMessage returns a copy of the error with a more specific message
func (e *DomainError) WithMessage(format string, args ...any) *DomainError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of the error that wraps cause
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.cause = cause
	return &cp
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *DomainError {
	return NewDomainError(KindValidation, code, message)
}

// NewConflictError creates a conflict error
func NewConflictError(code, message string) *DomainError {
	return NewDomainError(KindConflict, code, message)
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(code, message string) *DomainError {
	return NewDomainError(KindNotFound, code, message)
}

// NewIntegrityError creates an integrity error
func NewIntegrityError(code, message string) *DomainError {
	return NewDomainError(KindIntegrity, code, message)
}

// KindOf returns the kind of err, or KindInternal when err is not a DomainError
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a DomainError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Common domain errors
var (
	ErrNotFound              = NewNotFoundError("NOT_FOUND", "Resource not found")
	ErrInvalidInput          = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrDuplicateKey          = NewConflictError("DUPLICATE_KEY", "Resource already exists")
	ErrConcurrencyConflict   = NewConflictError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrIdempotencyInProgress = NewConflictError("IDEMPOTENCY_IN_PROGRESS", "A request with this idempotency key is still in progress")
	ErrIdempotencyKeyReused  = NewConflictError("IDEMPOTENCY_KEY_REUSED", "The idempotency key was already used for a different command")
	ErrInsufficientStock     = NewValidationError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrLockNotObtained       = NewConflictError("LOCK_NOT_OBTAINED", "Resource lock could not be obtained")
)
