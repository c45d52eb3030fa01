// Package query describes and evaluates queries over stored rows. An
// Expression is plain data; a Provider evaluates it against a Source.
package query

import (
	"fmt"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpILike
	OpIsNull
	OpIsNotNull
	OpBetween
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// Condition compares one property of a row with a value
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
	Or       bool // true for OR, false for AND
}

// String renders the condition for logs and plans
func (c *Condition) String() string {
	switch c.Operator {
	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", c.Field, c.Operator)
	default:
		return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
	}
}

// Matches evaluates the condition against row. A missing or nil value only
// satisfies IS NULL, as in SQL.
func (c *Condition) Matches(row storage.Row, p *schema.Property) (bool, error) {
	value := row[c.Field]
	switch c.Operator {
	case OpIsNull:
		return value == nil, nil
	case OpIsNotNull:
		return value != nil, nil
	}
	if value == nil {
		return false, nil
	}

	switch c.Operator {
	case OpEqual:
		return valuesEqual(p, value, c.Value)
	case OpNotEqual:
		eq, err := valuesEqual(p, value, c.Value)
		return !eq, err
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		cmp, err := compareValues(value, c.Value)
		if err != nil {
			return false, fmt.Errorf("condition %s: %w", c, err)
		}
		switch c.Operator {
		case OpGreaterThan:
			return cmp > 0, nil
		case OpGreaterThanOrEqual:
			return cmp >= 0, nil
		case OpLessThan:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpIn, OpNotIn:
		values, ok := c.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("%s operator requires []interface{} value", c.Operator)
		}
		found := false
		for _, v := range values {
			eq, err := valuesEqual(p, value, v)
			if err != nil {
				return false, err
			}
			if eq {
				found = true
				break
			}
		}
		return found == (c.Operator == OpIn), nil
	case OpLike, OpILike:
		s, ok := value.(string)
		pattern, patternOK := c.Value.(string)
		if !ok || !patternOK {
			return false, fmt.Errorf("operator %s only works with text values", c.Operator)
		}
		return likeMatch(s, pattern, c.Operator == OpILike), nil
	case OpBetween:
		bounds, ok := c.Value.([]interface{})
		if !ok || len(bounds) != 2 {
			return false, fmt.Errorf("BETWEEN operator requires [min, max] values")
		}
		low, err := compareValues(value, bounds[0])
		if err != nil {
			return false, fmt.Errorf("condition %s: %w", c, err)
		}
		high, err := compareValues(value, bounds[1])
		if err != nil {
			return false, fmt.Errorf("condition %s: %w", c, err)
		}
		return low >= 0 && high <= 0, nil
	default:
		return false, fmt.Errorf("unsupported operator: %v", c.Operator)
	}
}

// PredicateGroup represents a group of predicates combined with AND/OR
type PredicateGroup struct {
	Conditions []*Condition
	Groups     []*PredicateGroup
	Or         bool // true for OR, false for AND
}

// NewPredicateGroup creates a new predicate group
func NewPredicateGroup(or bool) *PredicateGroup {
	return &PredicateGroup{
		Conditions: make([]*Condition, 0),
		Groups:     make([]*PredicateGroup, 0),
		Or:         or,
	}
}

// AddCondition adds a condition to the group
func (pg *PredicateGroup) AddCondition(cond *Condition) {
	pg.Conditions = append(pg.Conditions, cond)
}

// AddGroup adds a nested group
func (pg *PredicateGroup) AddGroup(group *PredicateGroup) {
	pg.Groups = append(pg.Groups, group)
}

// IsEmpty reports whether the group holds no predicate
func (pg *PredicateGroup) IsEmpty() bool {
	if pg == nil {
		return true
	}
	for _, g := range pg.Groups {
		if !g.IsEmpty() {
			return false
		}
	}
	return len(pg.Conditions) == 0
}

// Matches evaluates the group against a row of et. An empty group matches
// every row.
func (pg *PredicateGroup) Matches(row storage.Row, et *schema.EntityType) (bool, error) {
	if pg.IsEmpty() {
		return true, nil
	}
	for _, cond := range pg.Conditions {
		ok, err := cond.Matches(row, et.FindProperty(cond.Field))
		if err != nil {
			return false, err
		}
		if ok == pg.Or {
			return ok, nil
		}
	}
	for _, group := range pg.Groups {
		if group.IsEmpty() {
			continue
		}
		ok, err := group.Matches(row, et)
		if err != nil {
			return false, err
		}
		if ok == pg.Or {
			return ok, nil
		}
	}
	return !pg.Or, nil
}

// Validate checks that every condition names a property of et and uses an
// operator the property type supports
func (pg *PredicateGroup) Validate(et *schema.EntityType) error {
	if pg == nil {
		return nil
	}
	for _, cond := range pg.Conditions {
		if err := ValidateField(et, cond.Field); err != nil {
			return err
		}
		if err := ValidateOperator(cond.Operator, et.FindProperty(cond.Field).Type()); err != nil {
			return err
		}
	}
	for _, group := range pg.Groups {
		if err := group.Validate(et); err != nil {
			return err
		}
	}
	return nil
}

// PredicateBuilder provides a fluent API for building complex predicates
type PredicateBuilder struct {
	root *PredicateGroup
}

// NewPredicateBuilder creates a new predicate builder combining its
// predicates with AND
func NewPredicateBuilder() *PredicateBuilder {
	return &PredicateBuilder{root: NewPredicateGroup(false)}
}

// NewOrPredicateBuilder creates a new predicate builder combining its
// predicates with OR
func NewOrPredicateBuilder() *PredicateBuilder {
	return &PredicateBuilder{root: NewPredicateGroup(true)}
}

// Where adds a condition
func (pb *PredicateBuilder) Where(field string, op Operator, value interface{}) *PredicateBuilder {
	pb.root.AddCondition(&Condition{Field: field, Operator: op, Value: value, Or: pb.root.Or})
	return pb
}

// AndGroup adds an AND group
func (pb *PredicateBuilder) AndGroup(fn func(*PredicateBuilder)) *PredicateBuilder {
	group := NewPredicateGroup(false)
	fn(&PredicateBuilder{root: group})
	pb.root.AddGroup(group)
	return pb
}

// OrGroup adds an OR group
func (pb *PredicateBuilder) OrGroup(fn func(*PredicateBuilder)) *PredicateBuilder {
	group := NewPredicateGroup(true)
	fn(&PredicateBuilder{root: group})
	pb.root.AddGroup(group)
	return pb
}

// Group returns the built predicate group
func (pb *PredicateBuilder) Group() *PredicateGroup {
	return pb.root
}

// ValidateField validates that a field is a property of et
func ValidateField(et *schema.EntityType, field string) error {
	if et.FindProperty(field) == nil {
		return fmt.Errorf("%w: '%s' on entity type '%s'", ErrUnknownField, field, et.DisplayName())
	}
	return nil
}

// ValidateOperator validates that an operator is compatible with a property type
func ValidateOperator(op Operator, typ schema.PrimitiveType) error {
	switch op {
	case OpLike, OpILike:
		if !typ.IsText() {
			return fmt.Errorf("operator %s only works with text fields", op)
		}
	case OpBetween, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		switch {
		case typ.IsNumeric(), typ.IsText(), typ == schema.TypeTimestamp, typ == schema.TypeDate:
		default:
			return fmt.Errorf("operator %s only works with ordered fields, not %s", op, typ)
		}
	}
	return nil
}
