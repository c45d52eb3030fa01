package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

// productModel builds Product with the derived DigitalProduct
func productModel(t *testing.T) *schema.Model {
	t.Helper()
	m := schema.NewModel()

	product, err := m.AddEntityType("Product")
	require.NoError(t, err)
	id, err := product.AddProperty("Id", schema.TypeInt)
	require.NoError(t, err)
	_, err = product.AddProperty("Name", schema.TypeString)
	require.NoError(t, err)
	_, err = product.AddProperty("Price", schema.TypeFloat)
	require.NoError(t, err)
	_, err = product.AddProperty("Stock", schema.TypeInt, schema.Nullable())
	require.NoError(t, err)
	_, err = product.AddProperty("Active", schema.TypeBool)
	require.NoError(t, err)
	_, err = product.SetPrimaryKey(id)
	require.NoError(t, err)

	digital, err := m.AddEntityType("DigitalProduct")
	require.NoError(t, err)
	require.NoError(t, digital.HasBaseType(product))
	_, err = digital.AddProperty("Url", schema.TypeString, schema.Nullable())
	require.NoError(t, err)

	require.NoError(t, m.Finalize(nil))
	return m
}

type rowSource struct {
	rows []storage.Row
	err  error
}

func (s *rowSource) Rows(ctx context.Context, et *schema.EntityType) ([]storage.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	var rows []storage.Row
	for _, row := range s.rows {
		name, _ := row[storage.TypeColumn].(string)
		if rowType := et.Model().FindEntityType(name); rowType != nil && rowType.IsAssignableTo(et) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func catalog() *rowSource {
	return &rowSource{rows: []storage.Row{
		{storage.TypeColumn: "Product", "Id": 1, "Name": "Hammer", "Price": 12.5, "Stock": 10, "Active": true},
		{storage.TypeColumn: "Product", "Id": 2, "Name": "saw", "Price": 30.0, "Stock": nil, "Active": true},
		{storage.TypeColumn: "Product", "Id": 3, "Name": "Drill", "Price": 99.0, "Stock": 2, "Active": false},
		{storage.TypeColumn: "DigitalProduct", "Id": 4, "Name": "Manual", "Price": 5.0, "Stock": nil, "Active": true, "Url": "http://x"},
	}}
}
