package schema

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// ValueComparer defines equality, hashing and snapshotting for property values
type ValueComparer interface {
	Equals(a, b interface{}) bool
	Hash(v interface{}) uint64
	Snapshot(v interface{}) interface{}
}

// ComparerFuncs adapts plain functions to ValueComparer. Nil functions fall
// back to the default structural behavior.
type ComparerFuncs struct {
	EqualsFunc   func(a, b interface{}) bool
	HashFunc     func(v interface{}) uint64
	SnapshotFunc func(v interface{}) interface{}
}

// Equals implements ValueComparer
func (c ComparerFuncs) Equals(a, b interface{}) bool {
	if c.EqualsFunc != nil {
		return c.EqualsFunc(a, b)
	}
	return DefaultComparer.Equals(a, b)
}

// Hash implements ValueComparer
func (c ComparerFuncs) Hash(v interface{}) uint64 {
	if c.HashFunc != nil {
		return c.HashFunc(v)
	}
	return DefaultComparer.Hash(v)
}

// Snapshot implements ValueComparer
func (c ComparerFuncs) Snapshot(v interface{}) interface{} {
	if c.SnapshotFunc != nil {
		return c.SnapshotFunc(v)
	}
	return DefaultComparer.Snapshot(v)
}

// DefaultComparer compares values structurally
var DefaultComparer ValueComparer = structuralComparer{}

type structuralComparer struct{}

func (structuralComparer) Equals(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func (structuralComparer) Hash(v interface{}) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%T:%v", v, v))
}

func (structuralComparer) Snapshot(v interface{}) interface{} {
	return deepCopyValue(v)
}

// deepCopyValue copies slices and maps so snapshots are not aliased by later writes
func deepCopyValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case []byte:
		cp := make([]byte, len(val))
		copy(cp, val)
		return cp
	case []interface{}:
		cp := make([]interface{}, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(val))
		for k, item := range val {
			cp[k] = deepCopyValue(item)
		}
		return cp
	case []string:
		cp := make([]string, len(val))
		copy(cp, val)
		return cp
	default:
		// Primitives and structs are copied by value
		return v
	}
}
