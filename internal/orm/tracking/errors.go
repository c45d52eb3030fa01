package tracking

import (
	"errors"
	"fmt"
)

// Runtime tracking error kinds
var (
	// ErrModelNotFinalized is returned when tracking starts on a mutable model
	ErrModelNotFinalized = errors.New("model not finalized")

	// ErrUnknownEntityType is returned for instances whose type is not in the model
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrInvalidEntity is returned for instances that cannot be tracked
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrKeylessEntityType is returned when a keyless instance is tracked
	ErrKeylessEntityType = errors.New("keyless entity type")

	// ErrUnknownMember is returned when a property or navigation name does not exist
	ErrUnknownMember = errors.New("unknown member")

	// ErrKeyReadOnly is returned when a key value of a persisted entity changes
	ErrKeyReadOnly = errors.New("key is read-only")

	// ErrIdentityConflict is returned when two instances share a key
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrDetachedEntity is returned when an untracked instance is mutated through the state manager
	ErrDetachedEntity = errors.New("entity is not tracked")

	// ErrInvalidNavigation is returned when a navigation is used as the wrong kind
	ErrInvalidNavigation = errors.New("invalid navigation")

	// ErrRelationshipSevered is returned when a required relationship loses its principal
	ErrRelationshipSevered = errors.New("required relationship severed")

	// ErrConcurrentOperation is returned when a second operation starts before the first completes
	ErrConcurrentOperation = errors.New("concurrent operation")

	// ErrConcurrencyFailure is returned when the store reports an optimistic concurrency conflict
	ErrConcurrencyFailure = errors.New("optimistic concurrency failure")
)

// TrackingError is a runtime tracking error with a fully rendered message
type TrackingError struct {
	Kind    error
	Message string
}

// Error implements the error interface
func (e *TrackingError) Error() string {
	return e.Message
}

// Unwrap returns the error kind
func (e *TrackingError) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) error {
	return &TrackingError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsConcurrencyFailure reports whether err is an optimistic concurrency failure
func IsConcurrencyFailure(err error) bool {
	return errors.Is(err, ErrConcurrencyFailure)
}
