package reconcile

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks.
var (
	ErrInvalidDesiredState = errors.New("invalid desired state")
	ErrAmbiguousMatch      = errors.New("ambiguous natural key")
	ErrInvalidDescriptor   = errors.New("invalid resource descriptor")
)

// ValidationError is a caller-side contract violation, detected before any
// network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", ErrInvalidDesiredState, e.Reason)
	}
	return fmt.Sprintf("%v: field %q: %s", ErrInvalidDesiredState, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDesiredState
}

// AmbiguousMatchError is returned when more than one remote resource shares
// the natural key. Nothing is mutated.
type AmbiguousMatchError struct {
	Kind     string
	KeyField string
	Value    any
	IDs      []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("%v: %d %s resources have %s=%v (ids %v)",
		ErrAmbiguousMatch, len(e.IDs), e.Kind, e.KeyField, e.Value, e.IDs)
}

func (e *AmbiguousMatchError) Is(target error) bool {
	return target == ErrAmbiguousMatch
}
