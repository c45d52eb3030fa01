package query

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

func TestOperator_String(t *testing.T) {
	tests := []struct {
		op   Operator
		want string
	}{
		{OpEqual, "="},
		{OpNotEqual, "!="},
		{OpGreaterThan, ">"},
		{OpGreaterThanOrEqual, ">="},
		{OpLessThan, "<"},
		{OpLessThanOrEqual, "<="},
		{OpIn, "IN"},
		{OpNotIn, "NOT IN"},
		{OpLike, "LIKE"},
		{OpILike, "ILIKE"},
		{OpIsNull, "IS NULL"},
		{OpIsNotNull, "IS NOT NULL"},
		{OpBetween, "BETWEEN"},
		{Operator(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestCondition_Matches(t *testing.T) {
	row := storage.Row{"Name": "Hammer", "Price": 12.5, "Stock": 10, "Missing": nil}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equal across integer types", Condition{Field: "Stock", Operator: OpEqual, Value: int64(10)}, true},
		{"equal int and float", Condition{Field: "Stock", Operator: OpEqual, Value: 10.0}, true},
		{"not equal", Condition{Field: "Name", Operator: OpNotEqual, Value: "Saw"}, true},
		{"greater than", Condition{Field: "Price", Operator: OpGreaterThan, Value: 12}, true},
		{"less or equal", Condition{Field: "Price", Operator: OpLessThanOrEqual, Value: 12.5}, true},
		{"in", Condition{Field: "Stock", Operator: OpIn, Value: []interface{}{1, 10}}, true},
		{"not in", Condition{Field: "Stock", Operator: OpNotIn, Value: []interface{}{1, 10}}, false},
		{"empty in", Condition{Field: "Stock", Operator: OpIn, Value: []interface{}{}}, false},
		{"like", Condition{Field: "Name", Operator: OpLike, Value: "H%r"}, true},
		{"like is case sensitive", Condition{Field: "Name", Operator: OpLike, Value: "h%"}, false},
		{"ilike", Condition{Field: "Name", Operator: OpILike, Value: "h_mmer"}, true},
		{"between", Condition{Field: "Price", Operator: OpBetween, Value: []interface{}{10, 20}}, true},
		{"is null", Condition{Field: "Missing", Operator: OpIsNull}, true},
		{"absent column is null", Condition{Field: "Absent", Operator: OpIsNull}, true},
		{"is not null", Condition{Field: "Name", Operator: OpIsNotNull}, true},
		{"null never equals", Condition{Field: "Missing", Operator: OpEqual, Value: nil}, false},
		{"null never in", Condition{Field: "Missing", Operator: OpNotIn, Value: []interface{}{1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Matches(row, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCondition_MatchesRejectsBadOperands(t *testing.T) {
	row := storage.Row{"Name": "Hammer", "Price": 12.5}

	_, err := (&Condition{Field: "Price", Operator: OpGreaterThan, Value: "ten"}).Matches(row, nil)
	require.ErrorIs(t, err, ErrIncomparable)
	assert.Equal(t, "condition Price > ten: values are not comparable: float64 and string", err.Error())

	_, err = (&Condition{Field: "Price", Operator: OpIn, Value: 1}).Matches(row, nil)
	assert.EqualError(t, err, "IN operator requires []interface{} value")

	_, err = (&Condition{Field: "Price", Operator: OpBetween, Value: []interface{}{1}}).Matches(row, nil)
	assert.EqualError(t, err, "BETWEEN operator requires [min, max] values")

	_, err = (&Condition{Field: "Price", Operator: OpLike, Value: "1%"}).Matches(row, nil)
	assert.EqualError(t, err, "operator LIKE only works with text values")
}

func TestLikeMatch(t *testing.T) {
	tests := []struct {
		s, pattern string
		want       bool
	}{
		{"hammer", "hammer", true},
		{"hammer", "%", true},
		{"", "%", true},
		{"hammer", "ham%", true},
		{"hammer", "%mer", true},
		{"hammer", "%mm%", true},
		{"hammer", "h_mmer", true},
		{"hammer", "h_mer", false},
		{"100%", `100\%`, true},
		{"1000", `100\%`, false},
		{"snow☃man", "snow_man", true},
		{"ham", "hammer", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, likeMatch(tt.s, tt.pattern, false), "%q LIKE %q", tt.s, tt.pattern)
	}
}

func TestCompareValues(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	tests := []struct {
		name string
		a, b interface{}
		want int
	}{
		{"nil first", nil, 1, -1},
		{"both nil", nil, nil, 0},
		{"ints", 1, int64(2), -1},
		{"int and float", 3, 2.5, 1},
		{"strings", "b", "a", 1},
		{"bools", false, true, -1},
		{"times", late, early, 1},
		{"uuid and string", id, id.String(), 0},
		{"bytes", []byte{1}, []byte{1, 0}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := compareValues(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := compareValues(true, 1)
	assert.ErrorIs(t, err, ErrIncomparable)
}

func TestPredicateBuilder_Groups(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")

	// Active AND (Price < 20 OR Stock IS NULL)
	group := NewPredicateBuilder().
		Where("Active", OpEqual, true).
		OrGroup(func(pb *PredicateBuilder) {
			pb.Where("Price", OpLessThan, 20).Where("Stock", OpIsNull, nil)
		}).
		Group()
	require.NoError(t, group.Validate(product))

	var matched []interface{}
	for _, row := range catalog().rows {
		ok, err := group.Matches(row, product)
		require.NoError(t, err)
		if ok {
			matched = append(matched, row["Id"])
		}
	}
	assert.Equal(t, []interface{}{1, 2, 4}, matched)
}

func TestPredicateGroup_Validate(t *testing.T) {
	m := productModel(t)
	product := m.FindEntityType("Product")

	err := NewPredicateBuilder().Where("Color", OpEqual, "red").Group().Validate(product)
	require.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, "unknown field: 'Color' on entity type 'Product'", err.Error())

	err = NewPredicateBuilder().Where("Price", OpLike, "1%").Group().Validate(product)
	assert.EqualError(t, err, "operator LIKE only works with text fields")

	err = NewPredicateBuilder().Where("Active", OpGreaterThan, false).Group().Validate(product)
	assert.EqualError(t, err, "operator > only works with ordered fields, not bool")

	assert.NoError(t, (*PredicateGroup)(nil).Validate(product))
	assert.True(t, NewPredicateGroup(true).IsEmpty())
}

func TestValidateOperator(t *testing.T) {
	assert.NoError(t, ValidateOperator(OpLike, schema.TypeText))
	assert.NoError(t, ValidateOperator(OpBetween, schema.TypeTimestamp))
	assert.NoError(t, ValidateOperator(OpEqual, schema.TypeJSON))
	assert.Error(t, ValidateOperator(OpBetween, schema.TypeUUID))
}
