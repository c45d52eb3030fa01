package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_BuildsExpression(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")

	expr, err := From(product).
		Where("Active", OpEqual, true).
		WhereLike("Name", "H%").
		OrWhere("Stock", OpIsNull, nil).
		OrderByDesc("Price").
		Limit(5).
		Offset(10).
		Build()
	require.NoError(t, err)

	assert.Equal(t,
		"Product WHERE (Active = true AND Name LIKE H%) OR (Stock IS NULL) ORDER BY Price DESC LIMIT 5 OFFSET 10",
		expr.String())
	assert.Same(t, product, expr.EntityType)
	assert.Equal(t, AggregateNone, expr.Aggregate)
}

func TestBuilder_Errors(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")

	_, err := From(product).OrderBy("Price", "sideways").Build()
	assert.EqualError(t, err, "invalid order direction: sideways")

	_, err = From(product).OrderByAsc("Color").Build()
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = From(product).Paginate(0, 10).Build()
	assert.EqualError(t, err, "invalid page 0 of size 10")

	_, err = From(product).Limit(-1).Build()
	assert.EqualError(t, err, "offset and limit must not be negative")

	_, err = From(product).Sum("Name")
	assert.EqualError(t, err, "SUM only works with numeric fields, not string")

	_, err = From(product).Max("Color")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestBuilder_CloneIsIndependent(t *testing.T) {
	m := productModel(t)
	base := From(m.FindEntityType("Product")).Where("Active", OpEqual, true)
	narrowed := base.Clone().Where("Price", OpLessThan, 20)

	baseExpr, err := base.Build()
	require.NoError(t, err)
	narrowedExpr, err := narrowed.Build()
	require.NoError(t, err)
	assert.Len(t, baseExpr.Where.Conditions, 1)
	assert.Len(t, narrowedExpr.Where.Conditions, 2)
}

func TestBuilder_WhereGroup(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")

	inStock := NewOrPredicateBuilder().
		Where("Stock", OpGreaterThan, 5).
		Where("Stock", OpIsNull, nil).
		Group()
	expr, err := From(product).Where("Active", OpEqual, true).WhereGroup(inStock).Build()
	require.NoError(t, err)
	assert.Equal(t, "Product WHERE (Active = true) AND (Stock > 5 OR Stock IS NULL)", expr.String())
	assert.Equal(t, []interface{}{1, 2, 4}, collect(t, NewMemoryProvider(catalog()), expr))
}

func TestScopes(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")
	registry := NewScopeRegistry()
	registry.Register(&Scope{Name: "active", Conditions: []*Condition{{Field: "Active", Operator: OpEqual, Value: true}}})
	registry.Register(&Scope{Name: "cheapest", OrderBy: []OrderClause{{Field: "Price"}}, Limit: 2})

	assert.True(t, registry.Has("active"))
	assert.False(t, registry.Has("archived"))
	assert.Equal(t, []string{"active", "cheapest"}, registry.List())

	expr, err := From(product).Scope(registry, "active", "cheapest").Build()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{4, 1}, collect(t, NewMemoryProvider(catalog()), expr))

	_, err = From(product).Scope(registry, "archived").Build()
	assert.EqualError(t, err, "unknown scope: archived")
}

func TestOptimize_ReordersAndGroupsOnly(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")

	expr, err := From(product).
		WhereLike("Name", "H%").
		Where("Stock", OpNotEqual, 3).
		Where("Id", OpEqual, 1).
		Build()
	require.NoError(t, err)

	optimized, applied := Optimize(expr)
	assert.Equal(t, []string{"Reordered conditions for selectivity"}, applied)
	assert.Equal(t, "Product WHERE Id = 1 AND Name LIKE H% AND Stock != 3", optimized.String())
	assert.Equal(t, "Product WHERE Name LIKE H% AND Stock != 3 AND Id = 1", expr.String())

	orExpr, err := From(product).WhereLike("Name", "H%").OrWhere("Id", OpEqual, 1).Build()
	require.NoError(t, err)
	plan := Explain(orExpr)
	assert.Empty(t, plan.Optimizations)
	assert.Equal(t, orExpr.String(), plan.Expression)
}
