package query

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

var (
	// ErrIncomparable is returned when two values have no common ordering
	ErrIncomparable = errors.New("values are not comparable")

	// ErrUnknownField is returned when a query names a missing property
	ErrUnknownField = errors.New("unknown field")

	// ErrNotScalar is returned when a sequence expression is executed as a scalar
	ErrNotScalar = errors.New("expression has no aggregate")

	// ErrNotSequence is returned when an aggregate expression is executed as a sequence
	ErrNotSequence = errors.New("expression has an aggregate")
)

// valuesEqual compares a stored value with a query value. Numbers compare by
// value across Go types; everything else uses the property comparer.
func valuesEqual(p *schema.Property, stored, value interface{}) (bool, error) {
	if stored == nil || value == nil {
		return stored == nil && value == nil, nil
	}
	if cmp, err := compareValues(stored, value); err == nil {
		return cmp == 0, nil
	}
	comparer := schema.DefaultComparer
	if p != nil {
		comparer = p.Comparer()
	}
	return comparer.Equals(stored, value), nil
}

// compareValues orders two values. nil sorts before every other value.
func compareValues(a, b interface{}) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	}

	if ai, ok := toInt64(a); ok {
		if bi, ok := toInt64(b); ok {
			return compareOrdered(ai, bi), nil
		}
	}
	if af, ok := toFloat64(a); ok {
		if bf, ok := toFloat64(b); ok {
			return compareOrdered(af, bf), nil
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	case uuid.UUID:
		switch bv := b.(type) {
		case uuid.UUID:
			return bytes.Compare(av[:], bv[:]), nil
		case string:
			return strings.Compare(av.String(), bv), nil
		}
	case []byte:
		if bv, ok := b.([]byte); ok {
			return bytes.Compare(av, bv), nil
		}
	}
	return 0, fmt.Errorf("%w: %T and %T", ErrIncomparable, a, b)
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v interface{}) (float64, bool) {
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// likeMatch matches s against a LIKE pattern where % matches any run of
// characters, _ matches one character and \ escapes the next one
func likeMatch(s, pattern string, foldCase bool) bool {
	if foldCase {
		s, pattern = strings.ToLower(s), strings.ToLower(pattern)
	}
	for len(pattern) > 0 {
		r, size := utf8.DecodeRuneInString(pattern)
		switch r {
		case '%':
			rest := pattern[size:]
			for i := 0; i <= len(s); {
				if likeMatch(s[i:], rest, false) {
					return true
				}
				if i == len(s) {
					break
				}
				_, n := utf8.DecodeRuneInString(s[i:])
				i += n
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			_, n := utf8.DecodeRuneInString(s)
			s, pattern = s[n:], pattern[size:]
		default:
			if r == '\\' && len(pattern) > size {
				pattern = pattern[size:]
				r, size = utf8.DecodeRuneInString(pattern)
			}
			c, n := utf8.DecodeRuneInString(s)
			if len(s) == 0 || c != r {
				return false
			}
			s, pattern = s[n:], pattern[size:]
		}
	}
	return len(s) == 0
}
