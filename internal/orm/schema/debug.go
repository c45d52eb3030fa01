package schema

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// ToDebugString renders the model shape. Annotations are listed in name order.
func (m *Model) ToDebugString() string {
	var b strings.Builder
	b.WriteString("Model:\n")
	for _, et := range m.GetEntityTypes() {
		et.writeDebug(&b, "  ")
	}
	writeAnnotations(&b, "", m.GetAnnotations())
	return b.String()
}

// ToDebugString renders a single entity type
func (et *EntityType) ToDebugString() string {
	var b strings.Builder
	et.writeDebug(&b, "")
	return b.String()
}

func (et *EntityType) writeDebug(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%sEntityType: %s", indent, et.name)
	if et.baseType != nil {
		fmt.Fprintf(b, " Base: %s", et.baseType.name)
	}
	if et.IsShadow() {
		b.WriteString(" Shadow")
	}
	if et.IsAbstract() {
		b.WriteString(" Abstract")
	}
	if et.keyless {
		b.WriteString(" Keyless")
	}
	if et.owned {
		b.WriteString(" Owned")
	}
	b.WriteString("\n")

	inner := indent + "  "
	item := inner + "  "

	if len(et.properties) > 0 {
		b.WriteString(inner + "Properties:\n")
		for _, p := range et.properties {
			fmt.Fprintf(b, "%s%s (%s)", item, p.name, p.typ)
			if p.nullable {
				b.WriteString(" Nullable")
			} else {
				b.WriteString(" Required")
			}
			if p.IsPrimaryKey() {
				b.WriteString(" PK")
			}
			if p.IsForeignKey() {
				b.WriteString(" FK")
			}
			if p.shadow {
				b.WriteString(" Shadow")
			}
			if p.concurrencyToken {
				b.WriteString(" Concurrency")
			}
			if p.valueGenerated != ValueGeneratedNever {
				fmt.Fprintf(b, " ValueGenerated.%s", p.valueGenerated)
			}
			if p.maxLength != nil {
				fmt.Fprintf(b, " MaxLength(%d)", *p.maxLength)
			}
			b.WriteString("\n")
			writeAnnotations(b, item+"  ", p.GetAnnotations())
		}
	}

	if len(et.keys) > 0 {
		b.WriteString(inner + "Keys:\n")
		for _, k := range et.keys {
			fmt.Fprintf(b, "%s%s", item, k)
			if k.IsPrimaryKey() {
				b.WriteString(" PK")
			}
			b.WriteString("\n")
		}
	}

	if len(et.foreignKeys) > 0 {
		b.WriteString(inner + "Foreign keys:\n")
		for _, fk := range et.foreignKeys {
			fmt.Fprintf(b, "%s%s %s -> %s %s", item, et.name, FormatProperties(fk.properties),
				fk.principalEntityType.name, fk.principalKey)
			if fk.unique {
				b.WriteString(" Unique")
			}
			if fk.required {
				b.WriteString(" Required")
			}
			if fk.ownership {
				b.WriteString(" Ownership")
			}
			fmt.Fprintf(b, " %s", fk.deleteBehavior)
			if fk.dependentToPrincipal != nil {
				fmt.Fprintf(b, " ToPrincipal: %s", fk.dependentToPrincipal.name)
			}
			if fk.principalToDependent != nil {
				fmt.Fprintf(b, " ToDependent: %s", fk.principalToDependent.name)
			}
			b.WriteString("\n")
		}
	}

	if len(et.navigations) > 0 {
		b.WriteString(inner + "Navigations:\n")
		for _, n := range et.navigations {
			fmt.Fprintf(b, "%s%s (%s)", item, n.name, n.TargetEntityType().name)
			if n.collection {
				b.WriteString(" Collection")
			}
			if n.onDependent {
				b.WriteString(" ToPrincipal")
			} else {
				b.WriteString(" ToDependent")
			}
			if inverse := n.Inverse(); inverse != nil {
				fmt.Fprintf(b, " Inverse: %s", inverse.name)
			}
			b.WriteString("\n")
		}
	}

	if len(et.skipNavigations) > 0 {
		b.WriteString(inner + "Skip navigations:\n")
		for _, s := range et.skipNavigations {
			fmt.Fprintf(b, "%s%s (%s)", item, s.name, s.targetType.name)
			if s.collection {
				b.WriteString(" Collection")
			}
			if join := s.JoinEntityType(); join != nil {
				fmt.Fprintf(b, " Join: %s", join.name)
			}
			if s.inverse != nil {
				fmt.Fprintf(b, " Inverse: %s", s.inverse.name)
			}
			b.WriteString("\n")
		}
	}

	if len(et.indexes) > 0 {
		b.WriteString(inner + "Indexes:\n")
		for _, idx := range et.indexes {
			fmt.Fprintf(b, "%s%s", item, FormatProperties(idx.properties))
			if idx.name != "" {
				fmt.Fprintf(b, " %s", idx.name)
			}
			if idx.unique {
				b.WriteString(" Unique")
			}
			b.WriteString("\n")
		}
	}

	writeAnnotations(b, inner, et.GetAnnotations())
}

func writeAnnotations(b *strings.Builder, indent string, list []*annotations.Annotation) {
	if len(list) == 0 {
		return
	}
	b.WriteString(indent + "Annotations:\n")
	for _, a := range list {
		fmt.Fprintf(b, "%s  %s\n", indent, a)
	}
}
