// Run with: go test ./internal/apperror/ -v
package apperror

import (
	"errors"
	"fmt"
	"testing"
)

// TABLE-DRIVEN TESTS:
// One slice of cases, one loop, one assertion block. Adding a case is one struct.

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("place", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Invalid wraps ErrValidation",
			err:       Invalid(map[string]string{"rating": "out of range"}),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Unauthenticated wraps ErrUnauthenticated",
			err:       Unauthenticated("token required"),
			target:    ErrUnauthenticated,
			wantMatch: true,
		},
		{
			name:      "Forbidden wraps ErrForbidden",
			err:       Forbidden("admin role required"),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("user", "abc123"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "wrapped with fmt.Errorf still matches",
			err:       fmt.Errorf("creating place: %w", ValidationFailed("name", "required")),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Unauthenticated does NOT match ErrForbidden",
			err:       Unauthenticated("token required"),
			target:    ErrForbidden,
			wantMatch: false,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("place", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("place", "abc123"),
			wantMessage: "place not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("name", "name is required"),
			wantMessage: "name is required",
		},
		{
			name: "Invalid lists fields in sorted order",
			err: Invalid(map[string]string{
				"position": "position is required",
				"address":  "address is required",
				"name":     "name is required",
			}),
			wantMessage: "invalid fields: address, name, position",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("review", "abc123")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestValidationFields(t *testing.T) {
	single := ValidationFailed("comment", "comment is required")
	if single.Field != "comment" {
		t.Errorf("Field = %q, want %q", single.Field, "comment")
	}
	if single.Fields["comment"] != "comment is required" {
		t.Errorf("Fields[comment] = %q", single.Fields["comment"])
	}

	multi := Invalid(map[string]string{"a": "x", "b": "y"})
	if multi.Field != "" {
		t.Errorf("Field = %q, want empty for multi-field error", multi.Field)
	}
	if len(multi.Fields) != 2 {
		t.Errorf("len(Fields) = %d, want 2", len(multi.Fields))
	}
}
