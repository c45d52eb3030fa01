package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

func checkSeedData(m *schema.Model) []*Violation {
	const rule = "SeedData"
	var violations []*Violation
	add := func(message string) {
		violations = append(violations, newViolation(rule, ErrSeedData, message))
	}

	// key space is shared by a whole hierarchy
	seenKeys := make(map[*schema.EntityType]map[string]bool)

	for _, et := range m.GetEntityTypes() {
		seeds := et.GetSeedData()
		if len(seeds) == 0 {
			continue
		}
		discriminator := et.GetDiscriminatorProperty()
		pk := et.FindPrimaryKey()

		for _, seed := range seeds {
			if seed.TypeName != et.Name() {
				seedType := m.FindEntityType(seed.TypeName)
				if seedType != nil && seedType.IsAssignableTo(et) {
					add(SeedDatumDerivedType(et.DisplayName(), seed.TypeName))
				} else {
					add(SeedDatumUnrelatedType(et.DisplayName(), seed.TypeName))
				}
				continue
			}

			names := make([]string, 0, len(seed.Values))
			for name := range seed.Values {
				names = append(names, name)
			}
			sort.Strings(names)

			valid := true
			for _, name := range names {
				if nav := et.FindNavigation(name); nav != nil {
					fk := nav.ForeignKey()
					add(SeedDatumNavigation(et.DisplayName(), name,
						fk.DeclaringEntityType().DisplayName(), schema.FormatProperties(fk.Properties())))
					valid = false
					continue
				}
				if skip := et.FindSkipNavigation(name); skip != nil {
					target := skip.TargetEntityType().DisplayName()
					if join := skip.JoinEntityType(); join != nil {
						target = join.DisplayName()
					}
					add(SeedDatumNavigation(et.DisplayName(), name, target, "{}"))
					valid = false
					continue
				}
				if et.FindProperty(name) == nil {
					add(SeedDatumUnknownMember(et.DisplayName(), name))
					valid = false
				}
			}

			for _, p := range et.GetProperties() {
				if p == discriminator {
					continue
				}
				generated := p.ValueGenerated().OnAdd()
				value, ok := seed.Value(p.Name())
				if !ok || value == nil {
					if !p.IsNullable() && !generated {
						add(SeedDatumMissingValue(et.DisplayName(), p.Name()))
						valid = false
					}
					continue
				}
				if p.IsPrimaryKey() && !generated && schema.IsDefaultValue(value) {
					add(SeedDatumDefaultValue(et.DisplayName(), p.Name(), value))
					valid = false
				}
			}

			if !valid || pk == nil {
				continue
			}
			keyValue, complete := formatKeyValue(pk, seed)
			if !complete {
				continue
			}
			root := et.RootType()
			if seenKeys[root] == nil {
				seenKeys[root] = make(map[string]bool)
			}
			if seenKeys[root][keyValue] {
				add(SeedDatumDuplicate(et.DisplayName(), schema.FormatProperties(pk.Properties())))
				continue
			}
			seenKeys[root][keyValue] = true
		}
	}
	return violations
}

// formatKeyValue renders the key values of a seed; complete is false when a
// key value is missing or default, as store-generated keys are
func formatKeyValue(pk *schema.Key, seed schema.SeedDatum) (string, bool) {
	parts := make([]string, 0, len(pk.Properties()))
	for _, p := range pk.Properties() {
		value, ok := seed.Value(p.Name())
		if !ok || schema.IsDefaultValue(value) {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%s=%T:%v", p.Name(), value, value))
	}
	return strings.Join(parts, ","), true
}
