package definition

import (
	"github.com/conduit-lang/entitycore/internal/orm/annotations"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

// annotations rendered as dedicated document fields
var reservedAnnotations = map[string]bool{
	schema.AnnotationProductVersion:        true,
	schema.AnnotationDiscriminatorProperty: true,
	schema.AnnotationDiscriminatorValue:    true,
	schema.AnnotationMappingStrategy:       true,
}

// Export describes m as a document. Building the result yields a model with
// the same shape.
func Export(m *schema.Model, name string) *Document {
	doc := &Document{
		Name:           name,
		ProductVersion: m.ProductVersion(),
		Annotations:    exportAnnotations(m.GetAnnotations()),
	}
	if s := m.ChangeTrackingStrategy(); s != schema.ChangeTrackingSnapshot {
		doc.ChangeTracking = s.String()
	}
	for _, et := range m.GetEntityTypes() {
		doc.EntityTypes = append(doc.EntityTypes, exportEntityType(m, et))
	}
	return doc
}

func exportEntityType(m *schema.Model, et *schema.EntityType) EntityTypeDef {
	def := EntityTypeDef{
		Name:               et.Name(),
		Shadow:             et.IsShadow(),
		PropertyBag:        et.IsPropertyBag(),
		Abstract:           et.IsAbstract(),
		Keyless:            et.IsKeyless(),
		Owned:              et.IsOwned(),
		DiscriminatorValue: et.GetDiscriminatorValue(),
		Annotations:        exportAnnotations(et.GetAnnotations()),
	}
	if base := et.BaseType(); base != nil {
		def.Base = base.Name()
	}
	if s := et.GetChangeTrackingStrategy(); s != m.ChangeTrackingStrategy() {
		def.ChangeTracking = s.String()
	}
	def.MappingStrategy, _ = et.AnnotationValue(schema.AnnotationMappingStrategy).(string)
	def.Discriminator, _ = et.AnnotationValue(schema.AnnotationDiscriminatorProperty).(string)

	for _, p := range et.GetDeclaredProperties() {
		def.Properties = append(def.Properties, exportProperty(p))
	}
	if et.BaseType() == nil {
		for _, key := range et.GetKeys() {
			if key.IsPrimaryKey() {
				def.PrimaryKey = names(key.Properties())
			} else {
				def.Keys = append(def.Keys, names(key.Properties()))
			}
		}
	}
	for _, fk := range et.GetDeclaredForeignKeys() {
		def.ForeignKeys = append(def.ForeignKeys, exportForeignKey(fk))
	}
	for _, skip := range et.GetDeclaredSkipNavigations() {
		def.SkipNavigations = append(def.SkipNavigations, exportSkipNavigation(skip))
	}
	for _, idx := range et.GetDeclaredIndexes() {
		def.Indexes = append(def.Indexes, IndexDef{
			Name:       idx.Name(),
			Properties: names(idx.Properties()),
			Unique:     idx.IsUnique(),
		})
	}
	for _, seed := range et.GetSeedData() {
		values := make(map[string]interface{}, len(seed.Values)+1)
		for k, v := range seed.Values {
			values[k] = v
		}
		if seed.TypeName != et.Name() {
			values[storage.TypeColumn] = seed.TypeName
		}
		def.Data = append(def.Data, values)
	}
	return def
}

func exportProperty(p *schema.Property) PropertyDef {
	def := PropertyDef{
		Name:             p.Name(),
		Type:             p.Type().String(),
		Nullable:         p.IsNullable(),
		Shadow:           p.IsShadowProperty(),
		ConcurrencyToken: p.IsConcurrencyToken(),
		MaxLength:        p.MaxLength(),
	}
	if g := p.ValueGenerated(); g != schema.ValueGeneratedNever {
		def.ValueGenerated = g.String()
	}
	return def
}

func exportForeignKey(fk *schema.ForeignKey) ForeignKeyDef {
	def := ForeignKeyDef{
		Properties:     names(fk.Properties()),
		Principal:      fk.PrincipalEntityType().Name(),
		Unique:         fk.IsUnique(),
		Ownership:      fk.IsOwnership(),
		DeleteBehavior: fk.DeleteBehavior().String(),
	}
	if !fk.PrincipalKey().IsPrimaryKey() {
		def.PrincipalKey = names(fk.PrincipalKey().Properties())
	}
	nullable := false
	for _, p := range fk.Properties() {
		nullable = nullable || p.IsNullable()
	}
	if required := fk.IsRequired(); required == nullable {
		def.Required = &required
	}
	if nav := fk.DependentToPrincipal(); nav != nil {
		def.DependentToPrincipal = nav.Name()
	}
	if nav := fk.PrincipalToDependent(); nav != nil {
		def.PrincipalToDependent = nav.Name()
	}
	return def
}

func exportSkipNavigation(skip *schema.SkipNavigation) SkipNavigationDef {
	def := SkipNavigationDef{
		Name:   skip.Name(),
		Target: skip.TargetEntityType().Name(),
	}
	if !skip.IsCollection() {
		collection := false
		def.Collection = &collection
	}
	if fk := skip.ForeignKey(); fk != nil {
		def.Join = fk.DeclaringEntityType().Name()
		def.ForeignKey = names(fk.Properties())
	}
	if inverse := skip.Inverse(); inverse != nil {
		def.Inverse = inverse.Name()
	}
	return def
}

func exportAnnotations(list []*annotations.Annotation) map[string]interface{} {
	var result map[string]interface{}
	for _, a := range list {
		if reservedAnnotations[a.Name] {
			continue
		}
		if result == nil {
			result = make(map[string]interface{})
		}
		result[a.Name] = a.Value
	}
	return result
}

func names(props []*schema.Property) []string {
	result := make([]string, len(props))
	for i, p := range props {
		result[i] = p.Name()
	}
	return result
}
