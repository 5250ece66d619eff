// Package apperror defines the domain error taxonomy shared by every layer.
//
// Lower layers return an *AppError that wraps one of the sentinel errors below.
// The HTTP layer inspects the sentinel with errors.Is to pick a status code and
// uses Message as the human-readable text sent to the client.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type AppError struct {
	Err     error  // sentinel the error belongs to
	Message string // human-readable message, safe to show to clients
	Field   string // optional: request field that caused the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound is returned for missing resources and for resources owned by
// another user. Callers never learn which of the two happened.
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

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// InvalidCredentials is returned by login when the email is unknown or the
// password does not verify. field names which of the two failed.
func InvalidCredentials(field, message string) *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: message,
		Field:   field,
	}
}
