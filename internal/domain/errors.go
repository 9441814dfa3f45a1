package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the record a caller named does not exist.
// Cascade triggers surface it to the caller without retry.
var ErrNotFound = errors.New("record not found")

// PersistenceError wraps a store fault during a cascade or batch
// operation. The enclosing transaction has been rolled back in full;
// the caller may retry the whole operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError reports a malformed record or a request that the
// engine refuses before mutating anything. During scheduler batches it
// is isolated per record and never aborts the batch.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
