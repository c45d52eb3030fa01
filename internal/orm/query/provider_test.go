package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/entitycore/internal/orm/storage"
	"github.com/conduit-lang/entitycore/internal/orm/storage/memory"
)

func collect(t *testing.T, p Provider, expr *Expression) []interface{} {
	t.Helper()
	seq, err := p.ExecuteSequence(context.Background(), expr)
	require.NoError(t, err)
	var ids []interface{}
	for row, err := range seq {
		require.NoError(t, err)
		ids = append(ids, row["Id"])
	}
	return ids
}

func TestMemoryProvider_ExecuteSequence(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")
	p := NewMemoryProvider(catalog())

	tests := []struct {
		name    string
		builder *Builder
		want    []interface{}
	}{
		{"all rows include derived types", From(product), []interface{}{1, 2, 3, 4}},
		{"derived type only", From(m.FindEntityType("DigitalProduct")), []interface{}{4}},
		{"filter", From(product).Where("Active", OpEqual, true).Where("Price", OpGreaterThan, 10), []interface{}{1, 2}},
		{"or binds loosest", From(product).Where("Active", OpEqual, false).OrWhere("Name", OpILike, "s%"), []interface{}{2, 3}},
		{"order descending", From(product).OrderByDesc("Price"), []interface{}{3, 2, 1, 4}},
		{"nulls sort first", From(product).OrderByAsc("Stock").OrderByAsc("Id"), []interface{}{2, 4, 3, 1}},
		{"paginate", From(product).OrderByAsc("Id").Paginate(2, 3), []interface{}{4}},
		{"offset past end", From(product).Offset(10), nil},
		{"limit", From(product).OrderByAsc("Id").Limit(2), []interface{}{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := tt.builder.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.want, collect(t, p, expr))
		})
	}
}

func TestMemoryProvider_ExecuteScalar(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")
	p := NewMemoryProvider(catalog())
	ctx := context.Background()

	scalar := func(expr *Expression, err error) interface{} {
		t.Helper()
		require.NoError(t, err)
		v, err := p.ExecuteScalar(ctx, expr)
		require.NoError(t, err)
		return v
	}

	active := func() *Builder { return From(product).Where("Active", OpEqual, true) }
	assert.Equal(t, 3, scalar(active().Count()))
	assert.Equal(t, true, scalar(active().Exists()))
	assert.Equal(t, false, scalar(From(product).Where("Price", OpGreaterThan, 1000).Exists()))
	assert.Equal(t, 47.5, scalar(active().Sum("Price")))
	assert.Equal(t, 6.0, scalar(From(product).Avg("Stock")))
	assert.Equal(t, 2, scalar(From(product).Min("Stock")))
	assert.Equal(t, "saw", scalar(From(product).Max("Name")))
	assert.Nil(t, scalar(From(product).Where("Id", OpEqual, 2).Avg("Stock")))
	assert.Equal(t, 0.0, scalar(From(product).Where("Id", OpEqual, 2).Sum("Stock")))
}

func TestMemoryProvider_RejectsMismatchedExecution(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")
	p := NewMemoryProvider(catalog())
	ctx := context.Background()

	count, err := From(product).Count()
	require.NoError(t, err)
	_, err = p.ExecuteSequence(ctx, count)
	assert.ErrorIs(t, err, ErrNotSequence)

	all, err := From(product).Build()
	require.NoError(t, err)
	_, err = p.ExecuteScalar(ctx, all)
	assert.ErrorIs(t, err, ErrNotScalar)

	_, err = p.ExecuteScalar(ctx, &Expression{Aggregate: AggregateCount})
	assert.EqualError(t, err, "query has no entity type")
}

func TestMemoryProvider_PropagatesErrors(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")
	boom := errors.New("source offline")
	p := NewMemoryProvider(&rowSource{err: boom})

	expr, err := From(product).Build()
	require.NoError(t, err)
	seq, err := p.ExecuteSequence(context.Background(), expr)
	require.NoError(t, err)
	for _, err := range seq {
		assert.ErrorIs(t, err, boom)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewMemoryProvider(catalog()).ExecuteScalar(ctx, &Expression{EntityType: product, Aggregate: AggregateCount})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryProvider_StopsWhenConsumerBreaks(t *testing.T) {
	m := productModel(t)
	expr, err := From(m.FindEntityType("Product")).Build()
	require.NoError(t, err)
	seq, err := NewMemoryProvider(catalog()).ExecuteSequence(context.Background(), expr)
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestMemoryProvider_OverMemoryStore(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")
	digital := m.FindEntityType("DigitalProduct")
	store := memory.New(m)
	ctx := context.Background()

	_, err := store.Save(ctx, []storage.Command{
		{EntityType: product, Operation: storage.OpInsert, Values: map[string]interface{}{
			"Id": 1, "Name": "Hammer", "Price": 12.5, "Active": true}},
		{EntityType: digital, Operation: storage.OpInsert, Values: map[string]interface{}{
			"Id": 2, "Name": "Manual", "Price": 5.0, "Active": true, "Url": "http://x"}},
	})
	require.NoError(t, err)

	p := NewMemoryProvider(store)
	expr, err := From(product).Where("Price", OpLessThan, 10).Build()
	require.NoError(t, err)
	seq, err := p.ExecuteSequence(ctx, expr)
	require.NoError(t, err)
	var rows []Row
	for row, err := range seq {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	require.Len(t, rows, 1)
	assert.Equal(t, "DigitalProduct", rows[0][storage.TypeColumn])
}
