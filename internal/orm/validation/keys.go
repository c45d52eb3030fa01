package validation

import (
	"github.com/conduit-lang/entitycore/internal/orm/annotations"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

func checkPrimaryKeys(m *schema.Model) []*Violation {
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		if et.BaseType() != nil || et.IsKeyless() {
			continue
		}
		if et.FindPrimaryKey() == nil {
			violations = append(violations, newViolation("PrimaryKeys", ErrEntityRequiresKey,
				EntityRequiresKey(et.DisplayName())))
		}
	}
	return violations
}

// checkReferencedShadowKeys rejects convention-created alternate keys over
// implicit shadow properties that a relationship targets
func checkReferencedShadowKeys(m *schema.Model) []*Violation {
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		if et.ClrType() == nil || et.BaseType() != nil {
			continue
		}
		for _, key := range et.GetKeys() {
			if key.IsPrimaryKey() || !annotations.Convention.Overrides(key.ConfigurationSource()) {
				continue
			}
			if !hasImplicitProperty(key.Properties()) {
				continue
			}
			referencing := key.ReferencingForeignKeys()
			if len(referencing) == 0 {
				continue
			}
			fk := referencing[0]

			from := fk.DeclaringEntityType().DisplayName()
			if nav := fk.DependentToPrincipal(); nav != nil {
				from += "." + nav.Name()
			}
			to := et.DisplayName()
			if nav := fk.PrincipalToDependent(); nav != nil {
				to += "." + nav.Name()
			}
			primaryKey := ""
			if pk := et.FindPrimaryKey(); pk != nil {
				primaryKey = schema.FormatPropertiesWithTypes(pk.Properties())
			}

			violations = append(violations, newViolation("ReferencedShadowKeys", ErrReferencedShadowKey,
				ReferencedShadowKey(from, to, schema.FormatPropertiesWithTypes(fk.Properties()), primaryKey)))
		}
	}
	return violations
}

func hasImplicitProperty(properties []*schema.Property) bool {
	for _, p := range properties {
		if p.IsShadowProperty() && annotations.Convention.Overrides(p.ConfigurationSource()) {
			return true
		}
	}
	return false
}

func checkMutableKeys(m *schema.Model) []*Violation {
	var violations []*Violation
	seen := make(map[*schema.Property]bool)
	for _, et := range m.GetEntityTypes() {
		if et.BaseType() != nil {
			continue
		}
		for _, key := range et.GetKeys() {
			for _, p := range key.Properties() {
				if seen[p] || !p.ValueGenerated().OnUpdate() {
					continue
				}
				seen[p] = true
				violations = append(violations, newViolation("MutableKeys", ErrMutableKeyProperty,
					MutableKeyProperty(p.DisplayName())))
			}
		}
	}
	return violations
}

func checkKeyComparers(m *schema.Model) []*Violation {
	var violations []*Violation
	seen := make(map[*schema.Property]bool)
	for _, et := range m.GetEntityTypes() {
		if et.BaseType() == nil {
			for _, key := range et.GetKeys() {
				for _, p := range key.Properties() {
					if seen[p] || hasComparer(p) {
						continue
					}
					seen[p] = true
					violations = append(violations, newViolation("KeyComparers", ErrNonComparableKeyType,
						NonComparableKeyType(p.DisplayName(), p.Type().String())))
				}
			}
		}
		for _, idx := range et.GetDeclaredIndexes() {
			if !idx.IsUnique() {
				continue
			}
			for _, p := range idx.Properties() {
				if seen[p] || hasComparer(p) {
					continue
				}
				seen[p] = true
				violations = append(violations, newViolation("KeyComparers", ErrNonComparableKeyType,
					NonComparableUniqueIndexType(p.DisplayName(), idx.DisplayName(), p.Type().String())))
			}
		}
	}
	return violations
}

func hasComparer(p *schema.Property) bool {
	return p.Type().HasDefaultComparer() || p.HasCustomComparer()
}
