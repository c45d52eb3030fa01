package validation

import (
	"fmt"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

func checkShadowEntities(m *schema.Model) []*Violation {
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		if et.IsShadow() && !et.IsPropertyBag() {
			violations = append(violations, newViolation("ShadowEntities", ErrShadowEntity,
				ShadowEntity(et.DisplayName())))
		}
	}
	return violations
}

// findEntityTypeForClr locates the entity type mapped to clr, matching by
// identity first and then by CLR type name
func findEntityTypeForClr(m *schema.Model, clr *schema.ClrType) *schema.EntityType {
	var byName *schema.EntityType
	for _, et := range m.GetEntityTypes() {
		if et.ClrType() == nil {
			continue
		}
		if et.ClrType() == clr {
			return et
		}
		if byName == nil && et.ClrType().Name == clr.Name {
			byName = et
		}
	}
	return byName
}

func checkClrInheritance(m *schema.Model) []*Violation {
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		clr := et.ClrType()
		if clr == nil {
			continue
		}

		var expected *schema.EntityType
		for base := clr.Base; base != nil; base = base.Base {
			if candidate := findEntityTypeForClr(m, base); candidate != nil && candidate != et {
				expected = candidate
				break
			}
		}

		if expected != nil && et.BaseType() != expected {
			violations = append(violations, newViolation("ClrInheritance", ErrInconsistentInheritance,
				InconsistentInheritance(et.DisplayName(), expected.DisplayName())))
			continue
		}

		if !isInstantiable(et) && !hasConcreteDescendant(et) {
			if clr.OpenGeneric {
				violations = append(violations, newViolation("ClrInheritance", ErrOpenGenericLeafEntityType,
					OpenGenericLeafEntityType(et.DisplayName())))
			} else {
				violations = append(violations, newViolation("ClrInheritance", ErrAbstractLeafEntityType,
					AbstractLeafEntityType(et.DisplayName())))
			}
		}
	}
	return violations
}

func isInstantiable(et *schema.EntityType) bool {
	clr := et.ClrType()
	return clr == nil || (!clr.Abstract && !clr.OpenGeneric)
}

func hasConcreteDescendant(et *schema.EntityType) bool {
	for _, derived := range et.GetDerivedTypes() {
		if isInstantiable(derived) {
			return true
		}
	}
	return false
}

func checkDiscriminators(m *schema.Model) []*Violation {
	const rule = "Discriminators"
	var violations []*Violation

	for _, et := range m.GetEntityTypes() {
		configured, hasAnnotation := et.AnnotationValue(schema.AnnotationDiscriminatorProperty).(string)

		if et.BaseType() != nil {
			if hasAnnotation {
				violations = append(violations, newViolation(rule, ErrNoDiscriminatorProperty,
					DiscriminatorPropertyNotFound(configured, et.RootType().DisplayName())))
			}
			continue
		}

		derived := et.GetDerivedTypes()
		if len(derived) == 0 {
			if hasAnnotation {
				violations = append(violations, newWarning(rule, WarningUnnecessaryDiscriminator, ErrUnnecessaryDiscriminator,
					UnnecessaryDiscriminator(configured, et.DisplayName())))
			}
			continue
		}
		if et.GetMappingStrategy() != schema.MappingTPH {
			continue
		}

		if !hasAnnotation {
			violations = append(violations, newViolation(rule, ErrNoDiscriminatorProperty,
				NoDiscriminatorProperty(et.DisplayName())))
			continue
		}
		if et.GetDiscriminatorProperty() == nil {
			violations = append(violations, newViolation(rule, ErrNoDiscriminatorProperty,
				DiscriminatorPropertyNotFound(configured, et.DisplayName())))
			continue
		}

		seen := make(map[string]*schema.EntityType)
		for _, t := range append([]*schema.EntityType{et}, derived...) {
			if !isInstantiable(t) {
				continue
			}
			value := t.GetDiscriminatorValue()
			if value == nil {
				violations = append(violations, newViolation(rule, ErrNoDiscriminatorValue,
					NoDiscriminatorValue(t.DisplayName())))
				continue
			}
			key := fmt.Sprintf("%T:%v", value, value)
			if first, exists := seen[key]; exists {
				violations = append(violations, newViolation(rule, ErrDuplicateDiscriminatorValue,
					DuplicateDiscriminatorValue(t.DisplayName(), value, first.DisplayName())))
				continue
			}
			seen[key] = t
		}
	}
	return violations
}

func checkChangeTracking(m *schema.Model) []*Violation {
	var violations []*Violation
	for _, et := range m.GetEntityTypes() {
		clr := et.ClrType()
		if clr == nil {
			continue
		}
		strategy := et.GetChangeTrackingStrategy()
		for _, iface := range strategy.RequiredInterfaces() {
			if !clr.Implements(iface) {
				violations = append(violations, newViolation("ChangeTracking", ErrChangeTrackingInterface,
					ChangeTrackingInterfaceMissing(et.DisplayName(), strategy.String(), iface)))
				break
			}
		}
	}
	return violations
}
