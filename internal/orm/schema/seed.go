package schema

// SeedDatum is one HasData entry. TypeName is the type of the seeded instance;
// Values holds property and navigation values by name.
type SeedDatum struct {
	TypeName string
	Values   map[string]interface{}
}

// Value returns the named value and whether it was set
func (s SeedDatum) Value(name string) (interface{}, bool) {
	v, ok := s.Values[name]
	return v, ok
}
