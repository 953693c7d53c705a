package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when an id does not exist.
var ErrNotFound = errors.New("not found")

// ErrorKind classifies failures by how they can be handled.
type ErrorKind string

const (
	ErrorUnknown   ErrorKind = "unknown"
	ErrorUserData  ErrorKind = "user_data"
	ErrorTransient ErrorKind = "transient"
	ErrorInvariant ErrorKind = "invariant"
)

// UserDataError marks stale or missing property and relation references.
// Callers degrade gracefully instead of failing.
type UserDataError struct {
	Ref    string
	Reason string
}

func (e *UserDataError) Error() string {
	return fmt.Sprintf("stale reference %s: %s", e.Ref, e.Reason)
}

// TransientError wraps a fetch or persist failure that may succeed on retry.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError. Nil stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Op: op, Err: err}
}

// InvariantViolation signals a malformed configuration produced by a
// programming bug. Retrying cannot fix it.
type InvariantViolation struct {
	What string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.What
}

// Classify reports the kind of err.
func Classify(err error) ErrorKind {
	var (
		ud *UserDataError
		te *TransientError
		iv *InvariantViolation
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &iv):
		return ErrorInvariant
	case errors.As(err, &ud):
		return ErrorUserData
	case errors.As(err, &te):
		return ErrorTransient
	default:
		return ErrorUnknown
	}
}
