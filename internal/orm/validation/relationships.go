package validation

import (
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

func checkRelationships(m *schema.Model) []*Violation {
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		for _, fk := range et.GetDeclaredForeignKeys() {
			dependent := fk.Properties()
			principal := fk.PrincipalKey().Properties()
			for i := range dependent {
				if dependent[i].Type() != principal[i].Type() {
					violations = append(violations, newViolation("Relationships", ErrForeignKeyTypeMismatch,
						ForeignKeyTypeMismatch(
							schema.FormatPropertiesWithTypes(dependent), et.DisplayName(),
							schema.FormatPropertiesWithTypes(principal), fk.PrincipalEntityType().DisplayName())))
					break
				}
			}
		}
	}
	return violations
}

func checkSkipNavigations(m *schema.Model) []*Violation {
	const rule = "SkipNavigations"
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		for _, skip := range et.GetDeclaredSkipNavigations() {
			if skip.ForeignKey() == nil {
				violations = append(violations, newViolation(rule, ErrSkipNavigationNoForeignKey,
					SkipNavigationNoForeignKey(skip.Name(), et.DisplayName())))
			}
			if skip.Inverse() == nil {
				violations = append(violations, newViolation(rule, ErrSkipNavigationNoInverse,
					SkipNavigationNoInverse(skip.Name(), et.DisplayName())))
			} else if skip.Inverse().Inverse() != skip {
				violations = append(violations, newViolation(rule, ErrSkipNavigationInverse,
					SkipNavigationInverseMismatch(skip.DisplayName(), skip.Inverse().DisplayName())))
			}
			if !skip.IsCollection() {
				violations = append(violations, newViolation(rule, ErrSkipNavigationNonCollection,
					SkipNavigationNonCollection(skip.Name(), et.DisplayName())))
			}
		}
	}
	return violations
}

func checkOwnership(m *schema.Model) []*Violation {
	const rule = "Ownership"
	var violations []*Violation

	for _, et := range m.GetEntityTypes() {
		if !et.IsOwned() {
			continue
		}

		var ownerships []*schema.ForeignKey
		for _, fk := range et.GetForeignKeys() {
			if fk.IsOwnership() {
				ownerships = append(ownerships, fk)
			}
		}
		if len(ownerships) > 1 {
			violations = append(violations, newViolation(rule, ErrMultipleOwnerships,
				MultipleOwnerships(et.DisplayName())))
			continue
		}
		if len(ownerships) == 0 || ownerships[0].PrincipalToDependent() == nil {
			violations = append(violations, newViolation(rule, ErrOwnerlessOwnedType,
				OwnerlessOwnedType(et.DisplayName())))
			continue
		}
		ownership := ownerships[0]

		for _, fk := range et.GetReferencingForeignKeys() {
			if fk.IsOwnership() && ownedBy(fk.DeclaringEntityType(), et) {
				continue
			}
			from := fk.DeclaringEntityType().DisplayName()
			if nav := fk.DependentToPrincipal(); nav != nil {
				from += "." + nav.Name()
			}
			to := fk.PrincipalEntityType().DisplayName()
			if nav := fk.PrincipalToDependent(); nav != nil {
				to += "." + nav.Name()
			}
			violations = append(violations, newViolation(rule, ErrPrincipalOwnedType,
				PrincipalOwnedType(from, to, et.DisplayName())))
		}

		for _, fk := range et.GetDeclaredForeignKeys() {
			if fk.IsOwnership() || fk.PrincipalToDependent() == nil {
				continue
			}
			violations = append(violations, newViolation(rule, ErrInverseToOwnedType,
				InverseToOwnedType(fk.PrincipalEntityType().DisplayName(), fk.PrincipalToDependent().Name(),
					et.DisplayName(), ownership.PrincipalEntityType().DisplayName())))
		}
	}
	return violations
}

// ownedBy reports whether dependent is owned through an ownership whose principal is owner
func ownedBy(dependent, owner *schema.EntityType) bool {
	if !dependent.IsOwned() {
		return false
	}
	for _, fk := range dependent.GetForeignKeys() {
		if fk.IsOwnership() && owner.IsAssignableTo(fk.PrincipalEntityType()) {
			return true
		}
	}
	return false
}

// isIdentifying reports whether a foreign key propagates a key value that the
// dependent does not generate itself
func isIdentifying(fk *schema.ForeignKey) bool {
	if !fk.IsRequired() {
		return false
	}
	pk := fk.DeclaringEntityType().FindPrimaryKey()
	if pk == nil {
		return false
	}
	for _, p := range fk.Properties() {
		if !pk.Contains(p) || p.ValueGenerated().OnAdd() {
			return false
		}
	}
	return true
}

func checkIdentifyingCycles(m *schema.Model) []*Violation {
	var violations []*Violation
	graph := schema.NewDependencyGraph(m, isIdentifying)
	for _, cycle := range graph.DetectCycles() {
		violations = append(violations, newViolation("IdentifyingCycles", ErrIdentifyingRelationshipCycle,
			IdentifyingRelationshipCycle(schema.FormatCycle(cycle))))
	}
	return violations
}
