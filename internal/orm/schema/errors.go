package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Construction error kinds
var (
	// ErrModelReadOnly is returned when a finalized model is mutated
	ErrModelReadOnly = errors.New("model is read-only")

	// ErrDuplicateEntityType is returned when an entity type name is taken
	ErrDuplicateEntityType = errors.New("duplicate entity type")

	// ErrDuplicateProperty is returned when a member name is already used in a hierarchy
	ErrDuplicateProperty = errors.New("duplicate property")

	// ErrDuplicateNavigation is returned when a navigation name is already used
	ErrDuplicateNavigation = errors.New("duplicate navigation")

	// ErrInvalidKey is returned when a key is empty or repeats a property
	ErrInvalidKey = errors.New("invalid key")

	// ErrNullableKeyProperty is returned when a key includes a nullable property
	ErrNullableKeyProperty = errors.New("nullable key property")

	// ErrKeyPropertyNotInHierarchy is returned when a key or foreign key uses a foreign property
	ErrKeyPropertyNotInHierarchy = errors.New("property not in hierarchy")

	// ErrForeignKeyCountMismatch is returned when a foreign key and its principal key differ in arity
	ErrForeignKeyCountMismatch = errors.New("foreign key count mismatch")

	// ErrDuplicateForeignKey is returned when the same foreign key is added twice
	ErrDuplicateForeignKey = errors.New("duplicate foreign key")

	// ErrCircularInheritance is returned when a base type assignment would form a cycle
	ErrCircularInheritance = errors.New("circular inheritance")

	// ErrDerivedTypeKey is returned when a derived entity type declares its own primary key
	ErrDerivedTypeKey = errors.New("derived type cannot have a key")

	// ErrKeylessTypeWithKey is returned when a keyless entity type is given a key
	ErrKeylessTypeWithKey = errors.New("keyless type cannot have a key")

	// ErrEntityTypeInUse is returned when removing metadata that is still referenced
	ErrEntityTypeInUse = errors.New("metadata in use")

	// ErrDuplicateIndex is returned when an index over the same properties exists
	ErrDuplicateIndex = errors.New("duplicate index")

	// ErrInvalidNavigation is returned when a navigation does not fit its foreign key
	ErrInvalidNavigation = errors.New("invalid navigation")

	// ErrModelMismatch is returned when metadata from different models is combined
	ErrModelMismatch = errors.New("metadata belongs to a different model")
)

// MetadataError is a construction error with a fully rendered message
type MetadataError struct {
	Kind    error
	Message string
}

// Error implements the error interface
func (e *MetadataError) Error() string {
	return e.Message
}

// Unwrap exposes the error kind to errors.Is
func (e *MetadataError) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) error {
	return &MetadataError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsReadOnly returns true if the error is ErrModelReadOnly
func IsReadOnly(err error) bool {
	return errors.Is(err, ErrModelReadOnly)
}

// FormatProperties renders property names as {'A', 'B'}
func FormatProperties(properties []*Property) string {
	names := make([]string, len(properties))
	for i, p := range properties {
		names[i] = "'" + p.Name() + "'"
	}
	return "{" + strings.Join(names, ", ") + "}"
}

// FormatPropertiesWithTypes renders properties as {'A' : int, 'B' : string}
func FormatPropertiesWithTypes(properties []*Property) string {
	parts := make([]string, len(properties))
	for i, p := range properties {
		typ := p.Type().String()
		if p.IsNullable() {
			typ += "?"
		}
		parts[i] = fmt.Sprintf("'%s' : %s", p.Name(), typ)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
