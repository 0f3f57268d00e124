package auditlog

import (
	"errors"
	"fmt"
)

var (
	// ErrModelNotFound matches every *ModelNotFoundError.
	ErrModelNotFound = errors.New("auditlog: model not found")
	// ErrNotLoggable is returned when an object's type declares no log name.
	ErrNotLoggable = errors.New("auditlog: model is not loggable")
	// ErrLogNotFound is returned by Store.Get for a missing row.
	ErrLogNotFound = errors.New("auditlog: log not found")
)

// ModelNotFoundError reports a lookup of a log name nobody registered.
type ModelNotFoundError struct {
	LogName string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("auditlog: model with log name %q not found", e.LogName)
}

func (e *ModelNotFoundError) Is(target error) bool {
	return target == ErrModelNotFound
}
