package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by mutations addressed to a record that does not
// exist. Read lookups return nil instead.
var ErrNotFound = eris.New("not found")

// ValidationError reports a rejected client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
