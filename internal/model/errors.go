package model

import "fmt"

// ValidationError reports a field-level rejection of user input. It is
// returned before any write happens, so a validation failure never leaves
// partial state behind.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
