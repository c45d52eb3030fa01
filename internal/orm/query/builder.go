package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// Aggregate selects the scalar an expression computes
type Aggregate int

const (
	AggregateNone Aggregate = iota
	AggregateCount
	AggregateExists
	AggregateSum
	AggregateAvg
	AggregateMin
	AggregateMax
)

// String returns the string representation of the aggregate
func (a Aggregate) String() string {
	switch a {
	case AggregateNone:
		return "none"
	case AggregateCount:
		return "COUNT"
	case AggregateExists:
		return "EXISTS"
	case AggregateSum:
		return "SUM"
	case AggregateAvg:
		return "AVG"
	case AggregateMin:
		return "MIN"
	case AggregateMax:
		return "MAX"
	default:
		return "UNKNOWN"
	}
}

// OrderClause sorts by one property
type OrderClause struct {
	Field      string
	Descending bool
}

// Expression describes a query over the rows of one entity type hierarchy.
// It is data only; a Provider decides how to evaluate it.
type Expression struct {
	EntityType *schema.EntityType
	Where      *PredicateGroup
	OrderBy    []OrderClause
	Offset     int
	// Limit caps the number of rows; zero means no limit
	Limit     int
	Aggregate Aggregate
	// Field is the aggregated property for SUM, AVG, MIN and MAX
	Field string
}

// Validate checks the expression against its entity type
func (e *Expression) Validate() error {
	if e == nil || e.EntityType == nil {
		return fmt.Errorf("query has no entity type")
	}
	if err := e.Where.Validate(e.EntityType); err != nil {
		return err
	}
	for _, o := range e.OrderBy {
		if err := ValidateField(e.EntityType, o.Field); err != nil {
			return err
		}
	}
	if e.Offset < 0 || e.Limit < 0 {
		return fmt.Errorf("offset and limit must not be negative")
	}
	switch e.Aggregate {
	case AggregateSum, AggregateAvg:
		if err := ValidateField(e.EntityType, e.Field); err != nil {
			return err
		}
		if typ := e.EntityType.FindProperty(e.Field).Type(); !typ.IsNumeric() {
			return fmt.Errorf("%s only works with numeric fields, not %s", e.Aggregate, typ)
		}
	case AggregateMin, AggregateMax:
		if err := ValidateField(e.EntityType, e.Field); err != nil {
			return err
		}
	}
	return nil
}

// String renders the expression for logs
func (e *Expression) String() string {
	var sb strings.Builder
	if e.Aggregate != AggregateNone {
		sb.WriteString(e.Aggregate.String())
		if e.Field != "" {
			fmt.Fprintf(&sb, "(%s)", e.Field)
		}
		sb.WriteString(" ")
	}
	if e.EntityType != nil {
		sb.WriteString(e.EntityType.Name())
	}
	if !e.Where.IsEmpty() {
		fmt.Fprintf(&sb, " WHERE %s", describeGroup(e.Where))
	}
	if len(e.OrderBy) > 0 {
		parts := make([]string, len(e.OrderBy))
		for i, o := range e.OrderBy {
			parts[i] = o.Field + " ASC"
			if o.Descending {
				parts[i] = o.Field + " DESC"
			}
		}
		fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(parts, ", "))
	}
	if e.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", e.Limit)
	}
	if e.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", e.Offset)
	}
	return sb.String()
}

func describeGroup(pg *PredicateGroup) string {
	parts := make([]string, 0, len(pg.Conditions)+len(pg.Groups))
	for _, c := range pg.Conditions {
		parts = append(parts, c.String())
	}
	for _, g := range pg.Groups {
		if !g.IsEmpty() {
			parts = append(parts, "("+describeGroup(g)+")")
		}
	}
	connector := " AND "
	if pg.Or {
		connector = " OR "
	}
	return strings.Join(parts, connector)
}

// Builder builds an Expression with a fluent API
type Builder struct {
	entityType *schema.EntityType
	conditions []*Condition
	groups     []*PredicateGroup
	orderBy    []OrderClause
	limit      int
	offset     int
	err        error
}

// From starts a query over the rows of et and its derived types
func From(et *schema.EntityType) *Builder {
	return &Builder{entityType: et}
}

// Where adds an AND condition
func (b *Builder) Where(field string, op Operator, value interface{}) *Builder {
	b.conditions = append(b.conditions, &Condition{Field: field, Operator: op, Value: value})
	return b
}

// OrWhere adds an OR condition. AND binds tighter than OR.
func (b *Builder) OrWhere(field string, op Operator, value interface{}) *Builder {
	b.conditions = append(b.conditions, &Condition{Field: field, Operator: op, Value: value, Or: true})
	return b
}

// WhereIn adds an IN condition
func (b *Builder) WhereIn(field string, values []interface{}) *Builder {
	return b.Where(field, OpIn, values)
}

// WhereNotIn adds a NOT IN condition
func (b *Builder) WhereNotIn(field string, values []interface{}) *Builder {
	return b.Where(field, OpNotIn, values)
}

// WhereNull adds an IS NULL condition
func (b *Builder) WhereNull(field string) *Builder {
	return b.Where(field, OpIsNull, nil)
}

// WhereNotNull adds an IS NOT NULL condition
func (b *Builder) WhereNotNull(field string) *Builder {
	return b.Where(field, OpIsNotNull, nil)
}

// WhereLike adds a LIKE condition
func (b *Builder) WhereLike(field string, pattern string) *Builder {
	return b.Where(field, OpLike, pattern)
}

// WhereILike adds a case-insensitive LIKE condition
func (b *Builder) WhereILike(field string, pattern string) *Builder {
	return b.Where(field, OpILike, pattern)
}

// WhereBetween adds a BETWEEN condition
func (b *Builder) WhereBetween(field string, min, max interface{}) *Builder {
	return b.Where(field, OpBetween, []interface{}{min, max})
}

// WhereGroup ANDs a predicate group built with a PredicateBuilder
func (b *Builder) WhereGroup(group *PredicateGroup) *Builder {
	b.groups = append(b.groups, group)
	return b
}

// OrderBy adds an ORDER BY clause; direction is ASC or DESC
func (b *Builder) OrderBy(field string, direction string) *Builder {
	switch strings.ToUpper(direction) {
	case "ASC", "":
		b.orderBy = append(b.orderBy, OrderClause{Field: field})
	case "DESC":
		b.orderBy = append(b.orderBy, OrderClause{Field: field, Descending: true})
	default:
		b.fail(fmt.Errorf("invalid order direction: %s", direction))
	}
	return b
}

// OrderByAsc adds an ascending ORDER BY clause
func (b *Builder) OrderByAsc(field string) *Builder {
	return b.OrderBy(field, "ASC")
}

// OrderByDesc adds a descending ORDER BY clause
func (b *Builder) OrderByDesc(field string) *Builder {
	return b.OrderBy(field, "DESC")
}

// Limit sets the maximum number of rows
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Offset sets the number of rows to skip
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Paginate selects page (1-based) of perPage rows
func (b *Builder) Paginate(page, perPage int) *Builder {
	if page < 1 || perPage < 1 {
		b.fail(fmt.Errorf("invalid page %d of size %d", page, perPage))
		return b
	}
	b.limit = perPage
	b.offset = (page - 1) * perPage
	return b
}

// Apply adds the predicates, ordering and limit of each scope
func (b *Builder) Apply(scopes ...*Scope) *Builder {
	for _, s := range scopes {
		for _, c := range s.Conditions {
			cp := *c
			b.conditions = append(b.conditions, &cp)
		}
		b.orderBy = append(b.orderBy, s.OrderBy...)
		if s.Limit > 0 {
			b.limit = s.Limit
		}
	}
	return b
}

// Clone returns an independent copy of the builder
func (b *Builder) Clone() *Builder {
	cp := *b
	cp.conditions = append([]*Condition(nil), b.conditions...)
	cp.groups = append([]*PredicateGroup(nil), b.groups...)
	cp.orderBy = append([]OrderClause(nil), b.orderBy...)
	return &cp
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Build returns the sequence expression
func (b *Builder) Build() (*Expression, error) {
	return b.build(AggregateNone, "")
}

// Count returns an expression counting matching rows
func (b *Builder) Count() (*Expression, error) { return b.build(AggregateCount, "") }

// Exists returns an expression reporting whether any row matches
func (b *Builder) Exists() (*Expression, error) { return b.build(AggregateExists, "") }

// Sum returns an expression summing field over matching rows
func (b *Builder) Sum(field string) (*Expression, error) { return b.build(AggregateSum, field) }

// Avg returns an expression averaging field over matching rows
func (b *Builder) Avg(field string) (*Expression, error) { return b.build(AggregateAvg, field) }

// Min returns an expression selecting the smallest value of field
func (b *Builder) Min(field string) (*Expression, error) { return b.build(AggregateMin, field) }

// Max returns an expression selecting the largest value of field
func (b *Builder) Max(field string) (*Expression, error) { return b.build(AggregateMax, field) }

func (b *Builder) build(aggregate Aggregate, field string) (*Expression, error) {
	if b.err != nil {
		return nil, b.err
	}
	expr := &Expression{
		EntityType: b.entityType,
		Where:      b.predicate(),
		OrderBy:    append([]OrderClause(nil), b.orderBy...),
		Offset:     b.offset,
		Limit:      b.limit,
		Aggregate:  aggregate,
		Field:      field,
	}
	if err := expr.Validate(); err != nil {
		return nil, err
	}
	return expr, nil
}

// predicate splits the conditions at each OR into AND runs
func (b *Builder) predicate() *PredicateGroup {
	runs := []*PredicateGroup{NewPredicateGroup(false)}
	for _, c := range b.conditions {
		if c.Or && len(runs[len(runs)-1].Conditions) > 0 {
			runs = append(runs, NewPredicateGroup(false))
		}
		runs[len(runs)-1].AddCondition(c)
	}

	var where *PredicateGroup
	if len(runs) == 1 {
		where = runs[0]
	} else {
		where = NewPredicateGroup(true)
		for _, run := range runs {
			where.AddGroup(run)
		}
	}
	if len(b.groups) == 0 {
		return where
	}
	root := NewPredicateGroup(false)
	root.AddGroup(where)
	for _, g := range b.groups {
		root.AddGroup(g)
	}
	return root
}
