package harvest

import (
	"errors"
	"fmt"
)

// ErrMissingRequiredField marks records rejected for a blank required
// attribute. Match it with errors.Is.
var ErrMissingRequiredField = errors.New("missing required field")

// Reason classifies a rejection.
type Reason string

// Rejection reasons.
const (
	ReasonMissingRequiredField Reason = "missing_required_field"
)

// RejectionError is returned by Validator for records that must be dropped.
// It is recoverable: the pipeline logs it and moves on.
type RejectionError struct {
	Reason    Reason
	Field     string
	Kind      Kind
	SourceURL string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("reject %s from %s: %s %q", e.Kind, e.SourceURL, ErrMissingRequiredField, e.Field)
}

// Is lets errors.Is match ErrMissingRequiredField.
func (e *RejectionError) Is(target error) bool {
	return e.Reason == ReasonMissingRequiredField && target == ErrMissingRequiredField
}

// StorageError wraps a failure of the backing store. It is fatal to a run.
type StorageError struct {
	Op  string
	Key Key
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
