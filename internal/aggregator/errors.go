package aggregator

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an unknown person id on PATCH or DELETE.
var ErrNotFound = errors.New("person not found")

// ErrConflict reports a spouse that is already taken.
var ErrConflict = errors.New("spouse conflict")

// ValidationError reports a malformed command or constraint violation.
// Commands failing validation consume no revision and emit no event.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
