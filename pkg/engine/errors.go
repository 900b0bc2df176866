package engine

import (
	"errors"
	"fmt"
)

// ErrDuplicateLog is returned when a member already logged for the given day.
// It is an expected outcome and leaves the room untouched.
var ErrDuplicateLog = errors.New("already logged today by this member")

// ValidationError reports a malformed command. Nothing is applied when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
