// Package schema provides the metadata graph for the entitycore ORM: the
// model, its entity types, properties, keys, foreign keys, navigations and
// indexes. The graph is built incrementally, validated once and then frozen.
package schema

import (
	"fmt"
	"reflect"

	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// ConfigurationSource is re-exported for callers that only import schema
type ConfigurationSource = annotations.ConfigurationSource

// PrimitiveType represents the storage-agnostic type of a property
type PrimitiveType int

const (
	// Text types
	TypeString PrimitiveType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal

	// Boolean
	TypeBool

	// Time types
	TypeTimestamp
	TypeDate

	// Unique identifiers
	TypeUUID

	// Opaque types
	TypeBytes
	TypeJSON
	TypeComplex
)

// String returns the string representation of the primitive type
func (p PrimitiveType) String() string {
	switch p {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeUUID:
		return "uuid"
	case TypeBytes:
		return "bytes"
	case TypeJSON:
		return "json"
	case TypeComplex:
		return "complex"
	default:
		return "unknown"
	}
}

// ParsePrimitiveType converts a string to a PrimitiveType
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int":
		return TypeInt, nil
	case "bigint":
		return TypeBigInt, nil
	case "float":
		return TypeFloat, nil
	case "decimal":
		return TypeDecimal, nil
	case "bool":
		return TypeBool, nil
	case "timestamp":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "uuid":
		return TypeUUID, nil
	case "bytes":
		return TypeBytes, nil
	case "json":
		return TypeJSON, nil
	case "complex":
		return TypeComplex, nil
	default:
		return 0, fmt.Errorf("unknown primitive type: %s", s)
	}
}

// IsNumeric returns true if the type is a numeric type
func (p PrimitiveType) IsNumeric() bool {
	return p == TypeInt || p == TypeBigInt || p == TypeFloat || p == TypeDecimal
}

// IsInteger returns true for types that a store can generate sequentially
func (p PrimitiveType) IsInteger() bool {
	return p == TypeInt || p == TypeBigInt
}

// IsText returns true if the type is a text type
func (p PrimitiveType) IsText() bool {
	return p == TypeString || p == TypeText
}

// HasDefaultComparer reports whether values of this type can be compared and
// hashed without a user supplied comparer
func (p PrimitiveType) HasDefaultComparer() bool {
	return p != TypeJSON && p != TypeComplex
}

// ValueGenerated describes when the store produces a value for a property
type ValueGenerated int

const (
	// ValueGeneratedNever means the application always supplies the value
	ValueGeneratedNever ValueGenerated = iota
	// ValueGeneratedOnAdd means a value is generated when the entity is inserted
	ValueGeneratedOnAdd
	// ValueGeneratedOnUpdate means a value is generated when the entity is updated
	ValueGeneratedOnUpdate
	// ValueGeneratedOnAddOrUpdate means a value is generated on insert and update
	ValueGeneratedOnAddOrUpdate
)

// String returns the string representation of the value generation strategy
func (v ValueGenerated) String() string {
	switch v {
	case ValueGeneratedNever:
		return "never"
	case ValueGeneratedOnAdd:
		return "on_add"
	case ValueGeneratedOnUpdate:
		return "on_update"
	case ValueGeneratedOnAddOrUpdate:
		return "on_add_or_update"
	default:
		return "unknown"
	}
}

// ParseValueGenerated converts a string to a ValueGenerated
func ParseValueGenerated(s string) (ValueGenerated, error) {
	switch s {
	case "never", "":
		return ValueGeneratedNever, nil
	case "on_add":
		return ValueGeneratedOnAdd, nil
	case "on_update":
		return ValueGeneratedOnUpdate, nil
	case "on_add_or_update":
		return ValueGeneratedOnAddOrUpdate, nil
	default:
		return 0, fmt.Errorf("unknown value generation strategy: %s", s)
	}
}

// OnAdd reports whether values are generated on insert
func (v ValueGenerated) OnAdd() bool {
	return v == ValueGeneratedOnAdd || v == ValueGeneratedOnAddOrUpdate
}

// OnUpdate reports whether values are generated on update
func (v ValueGenerated) OnUpdate() bool {
	return v == ValueGeneratedOnUpdate || v == ValueGeneratedOnAddOrUpdate
}

// DeleteBehavior represents what happens to dependents when a principal goes away
type DeleteBehavior int

const (
	DeleteRestrict DeleteBehavior = iota
	DeleteCascade
	DeleteSetNull
	DeleteNoAction
)

// String returns the string representation of the delete behavior
func (d DeleteBehavior) String() string {
	switch d {
	case DeleteRestrict:
		return "restrict"
	case DeleteCascade:
		return "cascade"
	case DeleteSetNull:
		return "set_null"
	case DeleteNoAction:
		return "no_action"
	default:
		return "unknown"
	}
}

// ParseDeleteBehavior converts a string to a DeleteBehavior
func ParseDeleteBehavior(s string) (DeleteBehavior, error) {
	switch s {
	case "restrict", "":
		return DeleteRestrict, nil
	case "cascade":
		return DeleteCascade, nil
	case "set_null":
		return DeleteSetNull, nil
	case "no_action":
		return DeleteNoAction, nil
	default:
		return 0, fmt.Errorf("unknown delete behavior: %s", s)
	}
}

// ChangeTrackingStrategy selects how changes to entity instances are noticed
type ChangeTrackingStrategy int

const (
	// ChangeTrackingSnapshot compares current values against an original snapshot
	ChangeTrackingSnapshot ChangeTrackingStrategy = iota
	// ChangeTrackingChangedNotifications relies on property-changed notifications
	ChangeTrackingChangedNotifications
	// ChangeTrackingChangingAndChangedNotifications relies on changing and changed notifications
	ChangeTrackingChangingAndChangedNotifications
	// ChangeTrackingChangingAndChangedNotificationsWithOriginalValues also keeps original values
	ChangeTrackingChangingAndChangedNotificationsWithOriginalValues
)

// Interfaces a CLR type implements to raise change notifications
const (
	InterfacePropertyChanged  = "INotifyPropertyChanged"
	InterfacePropertyChanging = "INotifyPropertyChanging"
)

// String returns the string representation of the strategy
func (c ChangeTrackingStrategy) String() string {
	switch c {
	case ChangeTrackingSnapshot:
		return "Snapshot"
	case ChangeTrackingChangedNotifications:
		return "ChangedNotifications"
	case ChangeTrackingChangingAndChangedNotifications:
		return "ChangingAndChangedNotifications"
	case ChangeTrackingChangingAndChangedNotificationsWithOriginalValues:
		return "ChangingAndChangedNotificationsWithOriginalValues"
	default:
		return "Unknown"
	}
}

// ParseChangeTrackingStrategy converts a string to a ChangeTrackingStrategy
func ParseChangeTrackingStrategy(s string) (ChangeTrackingStrategy, error) {
	for _, c := range []ChangeTrackingStrategy{
		ChangeTrackingSnapshot,
		ChangeTrackingChangedNotifications,
		ChangeTrackingChangingAndChangedNotifications,
		ChangeTrackingChangingAndChangedNotificationsWithOriginalValues,
	} {
		if c.String() == s {
			return c, nil
		}
	}
	if s == "" {
		return ChangeTrackingSnapshot, nil
	}
	return 0, fmt.Errorf("unknown change tracking strategy: %s", s)
}

// RequiredInterfaces lists the notification interfaces a mapped type needs
func (c ChangeTrackingStrategy) RequiredInterfaces() []string {
	switch c {
	case ChangeTrackingChangedNotifications:
		return []string{InterfacePropertyChanged}
	case ChangeTrackingChangingAndChangedNotifications, ChangeTrackingChangingAndChangedNotificationsWithOriginalValues:
		return []string{InterfacePropertyChanged, InterfacePropertyChanging}
	default:
		return nil
	}
}

// ClrType describes the application type backing an entity type
type ClrType struct {
	Name        string
	Base        *ClrType
	Abstract    bool
	OpenGeneric bool
	Interfaces  []string

	// New constructs an empty instance; used when materializing query results
	New func() interface{}
}

// Implements reports whether the type or any of its bases declares iface
func (c *ClrType) Implements(iface string) bool {
	for t := c; t != nil; t = t.Base {
		for _, declared := range t.Interfaces {
			if declared == iface {
				return true
			}
		}
	}
	return false
}

// IsAssignableTo reports whether c is other or derives from it
func (c *ClrType) IsAssignableTo(other *ClrType) bool {
	for t := c; t != nil; t = t.Base {
		if t == other {
			return true
		}
	}
	return false
}

// IsDefaultValue reports whether v is nil or the zero value of its type
func IsDefaultValue(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return true
		}
	}
	return rv.IsZero()
}
