package validation

import (
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

func checkIndexes(m *schema.Model) []*Violation {
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		indexes := et.GetIndexes()
		for i, idx := range et.GetDeclaredIndexes() {
			if covering := findCovering(et, idx, indexes, i); covering != "" {
				violations = append(violations, newWarning("Indexes", WarningRedundantIndex, ErrRedundantIndex,
					RedundantIndex(idx.DisplayName(), et.DisplayName(), covering)))
			}
		}
	}
	return violations
}

// findCovering returns a description of a key or index whose leading
// properties include every property of idx
func findCovering(et *schema.EntityType, idx *schema.Index, indexes []*schema.Index, declaredPos int) string {
	props := idx.Properties()
	for _, key := range et.GetKeys() {
		if isPrefix(props, key.Properties()) && (!idx.IsUnique() || len(props) == len(key.Properties())) {
			return "the key " + key.String()
		}
	}

	inherited := len(indexes) - len(et.GetDeclaredIndexes())
	for j, other := range indexes {
		if other == idx {
			continue
		}
		otherProps := other.Properties()
		if !isPrefix(props, otherProps) {
			continue
		}
		if idx.IsUnique() && (!other.IsUnique() || len(props) != len(otherProps)) {
			continue
		}
		// identical indexes: only the later one is redundant
		if len(props) == len(otherProps) && idx.IsUnique() == other.IsUnique() && j > inherited+declaredPos {
			continue
		}
		return "the index " + other.DisplayName()
	}
	return ""
}

func isPrefix(prefix, full []*schema.Property) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}

func checkPropertyFacets(m *schema.Model) []*Violation {
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		for _, p := range et.GetDeclaredProperties() {
			if p.MaxLength() == nil {
				continue
			}
			if p.Type().IsText() || p.Type() == schema.TypeBytes {
				continue
			}
			violations = append(violations, newWarning("PropertyFacets", WarningMaxLengthIgnored, ErrMaxLengthIgnored,
				MaxLengthIgnored(p.DisplayName(), p.Type().String())))
		}
	}
	return violations
}
