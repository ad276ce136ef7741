// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the coordination error taxonomy. Components wrap
// these with fmt.Errorf("...: %w", ...) so callers can match with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTimeout          = errors.New("timeout")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrNoApprover       = errors.New("no approver with sufficient authority")
	ErrCannotEscalate   = errors.New("cannot escalate further")
	ErrInternal         = errors.New("internal error")
)

// NotFoundf wraps ErrNotFound with a formatted message
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// InvalidArgumentf wraps ErrInvalidArgument with a formatted message
func InvalidArgumentf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

// Conflictf wraps ErrConflict with a formatted message
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// PermissionDeniedf wraps ErrPermissionDenied with a formatted message
func PermissionDeniedf(format string, args ...interface{}) error {
	return fmt.Errorf(format+": %w", append(args, ErrPermissionDenied)...)
}

// HTTPStatus maps a coordination error to an HTTP status code
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrCapacityExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNoApprover), errors.Is(err, ErrCannotEscalate):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
