// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values wrapping one of the sentinels below.
// The HTTP layer never inspects messages; it maps sentinels to status codes
// with errors.Is (see handler/response.go). Anything that is NOT an AppError
// is treated as a storage/internal failure and surfaces as a 500.
package apperror

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AppError struct {
	Err     error             // sentinel
	Message string            // Human-readable error message
	Field   string            // Optional: single field causing the error
	Fields  map[string]string // Optional: every invalid field → message
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
		Fields:  map[string]string{field: message},
	}
}

// Invalid builds a single validation error out of several field problems.
//
// WHY ONE ERROR FOR MANY FIELDS?
// Forms show every problem inline at once. Returning on the first bad field
// would make the user fix-and-resubmit one field at a time.
//
// The message lists the fields in sorted order so it is stable across runs
// (Go map iteration order is random).
func Invalid(fields map[string]string) *AppError {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	field := ""
	if len(names) == 1 {
		field = names[0]
	}

	return &AppError{
		Err:     ErrValidation,
		Message: "invalid fields: " + strings.Join(names, ", "),
		Field:   field,
		Fields:  fields,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
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

// Unauthenticated means no usable identity was presented (missing, expired or
// tampered token). HTTP handlers map this to 401 Unauthorized.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}
