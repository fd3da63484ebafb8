// Package apperror defines the error kinds the service layer returns.
//
// ERROR KINDS:
// Each sentinel below is one "kind" the HTTP layer knows how to translate:
//
//	ErrUnauthenticated → 401   (missing, expired or invalid credentials)
//	ErrForbidden       → 403   (authenticated, but lacking the club role)
//	ErrNotFound        → 404   (referenced club/event/user does not exist)
//	ErrConflict        → 400   (duplicate registration, duplicate join, already admin)
//	ErrNotMember       → 400   (acting on a club you do not belong to)
//	ErrValidation      → 400   (bad input, with the offending field)
//
// Services return *AppError values that wrap one of these sentinels, so callers
// can branch with errors.Is() while still getting a human-readable message.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrNotMember       = errors.New("not a member")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a state clash such as a duplicate registration or join.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is returned for bad credentials and bad tokens alike.
// The message must never say which part of a login was wrong.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func NotMember(message string) *AppError {
	return &AppError{
		Err:     ErrNotMember,
		Message: message,
	}
}
