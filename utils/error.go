package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorIndexUnavailable signals that the index backing store cannot be
// reached. Search degrades to the authoritative store; it is never fatal.
var ErrorIndexUnavailable = errors.New("index store unavailable")

// ErrorStaleWrite is returned by the index store when a write carries a lower
// version than the stored document. The caller logs and discards it.
var ErrorStaleWrite = errors.New("stale index write discarded")

// ValidationError marks a caller contract violation (malformed range, unknown
// strategy). It is rejected synchronously and never retried.
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

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
