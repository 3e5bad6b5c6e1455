package dto

import (
	"net/http"

	"github.com/erp/ledgercore/internal/domain/shared"
)

// Transport-level error codes. Domain errors keep their own code.
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInvalidJSON is used when the body is not valid JSON
	ErrCodeInvalidJSON = "INVALID_JSON"
	// ErrCodeValidation is used when request binding rules fail
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeBodyTooLarge is used when the body exceeds the configured limit
	ErrCodeBodyTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeTimeout is used when a request runs past its deadline
	ErrCodeTimeout = "REQUEST_TIMEOUT"
	// ErrCodeInternal is used for unexpected failures
	ErrCodeInternal = "INTERNAL_ERROR"
)

// KindHTTPStatus maps domain error kinds to HTTP status codes
var KindHTTPStatus = map[shared.ErrorKind]int{
	shared.KindValidation:  http.StatusUnprocessableEntity,
	shared.KindConflict:    http.StatusConflict,
	shared.KindNotFound:    http.StatusNotFound,
	shared.KindIntegrity:   http.StatusInternalServerError,
	shared.KindUnavailable: http.StatusServiceUnavailable,
	shared.KindInternal:    http.StatusInternalServerError,
}

// StatusForKind returns the HTTP status for kind, 500 when unknown
func StatusForKind(kind shared.ErrorKind) int {
	if status, ok := KindHTTPStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ExposesDetails reports whether an error of kind may show its message and
// details to the caller. Integrity and internal failures are logged instead.
func ExposesDetails(kind shared.ErrorKind) bool {
	switch kind {
	case shared.KindIntegrity, shared.KindInternal:
		return false
	}
	return true
}
