// Package storage defines the contract between the change tracker and a data
// store. The tracker hands the store an ordered batch of commands; the store
// applies the whole batch or none of it and reports the values it generated.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// TypeColumn is the reserved row column holding the concrete entity type name
const TypeColumn = "$type"

// Row is a stored record keyed by property name
type Row map[string]interface{}

// Operation is the kind of write a command performs
type Operation int

const (
	OpInsert Operation = iota
	OpUpdate
	OpDelete
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Command is one entity write within a batch
type Command struct {
	EntityType *schema.EntityType
	Operation  Operation

	// Values holds the current value of every property
	Values map[string]interface{}

	// OriginalValues holds the values last read from or written to the store
	OriginalValues map[string]interface{}

	// ModifiedProperties names the properties an update changes
	ModifiedProperties []string

	// TemporaryProperties names properties holding placeholder values that
	// the store must replace with generated ones
	TemporaryProperties []string
}

// Result carries the values a store generated or resolved for one command
type Result struct {
	Values map[string]interface{}
}

// Store persists batches of commands atomically
type Store interface {
	Save(ctx context.Context, commands []Command) ([]Result, error)
}

// Common store errors
var (
	// ErrConcurrencyConflict is returned when an update or delete affects no row
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateKey is returned when an insert or update violates a key
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrForeignKeyViolation is returned when a foreign key value has no principal
	// or a deleted principal is still referenced
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrUnknownEntityType is returned for commands or queries on unmapped types
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrTransient is returned when a batch was rejected as a whole and may
	// succeed when submitted again
	ErrTransient = errors.New("transient store failure")
)

// CommandError reports which command of a batch failed
type CommandError struct {
	Index   int
	Command *Command
	Err     error
}

// Error implements the error interface
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s of '%s' failed: %v", e.Command.Operation, e.Command.EntityType.DisplayName(), e.Err)
}

// Unwrap returns the underlying error
func (e *CommandError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient store failure
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsConcurrencyConflict reports whether err is a concurrency conflict
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
