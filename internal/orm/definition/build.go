package definition

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/annotations"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

// BuildOption configures Build
type BuildOption func(*builder)

// WithLogger logs the build steps at debug level
func WithLogger(logger *zap.Logger) BuildOption {
	return func(b *builder) { b.logger = logger }
}

// WithConstructors registers constructors for the CLR types of entity types,
// used when materializing query results
func WithConstructors(ctors map[string]func() interface{}) BuildOption {
	return func(b *builder) { b.ctors = ctors }
}

type builder struct {
	doc    *Document
	model  *schema.Model
	logger *zap.Logger
	ctors  map[string]func() interface{}
}

// Build creates a mutable model from the document. The caller finalizes it.
func Build(doc *Document, opts ...BuildOption) (*schema.Model, error) {
	b := &builder{doc: doc, model: schema.NewModel(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	if err := doc.check(); err != nil {
		return nil, err
	}

	steps := []struct {
		name string
		run  func(def *EntityTypeDef, et *schema.EntityType) error
	}{
		{"base type", b.applyBase},
		{"properties", b.applyProperties},
		{"keys", b.applyKeys},
		{"foreign keys", b.applyForeignKeys},
		{"skip navigations", b.applySkipNavigations},
		{"inverse navigations", b.applyInverses},
		{"indexes", b.applyIndexes},
		{"facets", b.applyFacets},
		{"data", b.applyData},
	}

	if err := b.applyModel(); err != nil {
		return nil, err
	}
	for i := range doc.EntityTypes {
		if err := b.addEntityType(&doc.EntityTypes[i]); err != nil {
			return nil, err
		}
	}
	for _, step := range steps {
		for i := range doc.EntityTypes {
			def := &doc.EntityTypes[i]
			if err := step.run(def, b.model.FindEntityType(def.Name)); err != nil {
				return nil, fmt.Errorf("entity type '%s': %w", def.Name, err)
			}
		}
		b.logger.Debug("model document step applied", zap.String("step", step.name))
	}
	return b.model, nil
}

// BuildFile loads and builds the document stored at path
func BuildFile(path string, opts ...BuildOption) (*schema.Model, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(doc, opts...)
}

func (b *builder) applyModel() error {
	if b.doc.ChangeTracking != "" {
		strategy, err := schema.ParseChangeTrackingStrategy(b.doc.ChangeTracking)
		if err != nil {
			return err
		}
		if err := b.model.SetChangeTrackingStrategy(strategy); err != nil {
			return err
		}
	}
	if b.doc.ProductVersion != "" {
		if _, err := b.model.SetOrOverrideAnnotation(schema.AnnotationProductVersion, b.doc.ProductVersion, annotations.Explicit); err != nil {
			return err
		}
	}
	return setAnnotations(&b.model.Annotatable, b.doc.Annotations)
}

func (b *builder) addEntityType(def *EntityTypeDef) error {
	var (
		et   *schema.EntityType
		err  error
		opts []schema.EntityTypeOption
	)
	if def.Keyless {
		opts = append(opts, schema.AsKeyless())
	}
	if def.Owned {
		opts = append(opts, schema.AsOwned())
	}
	if def.Shadow {
		et, err = b.model.AddShadowEntityType(def.Name, opts...)
	} else {
		clr := &schema.ClrType{Name: def.Name, Abstract: def.Abstract, New: b.ctors[def.Name]}
		et, err = b.model.AddEntityType(def.Name, append(opts, schema.WithClrType(clr))...)
	}
	if err == nil && def.PropertyBag {
		err = et.SetPropertyBag(true)
	}
	if err != nil {
		return fmt.Errorf("entity type '%s': %w", def.Name, err)
	}
	return nil
}

func (b *builder) entityType(name string) (*schema.EntityType, error) {
	et := b.model.FindEntityType(name)
	if et == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownEntityType, name)
	}
	return et, nil
}

func (b *builder) applyBase(def *EntityTypeDef, et *schema.EntityType) error {
	if def.Base == "" {
		return nil
	}
	base, err := b.entityType(def.Base)
	if err != nil {
		return err
	}
	if et.ClrType() != nil && base.ClrType() != nil {
		et.ClrType().Base = base.ClrType()
	}
	return et.HasBaseType(base)
}

func (b *builder) applyProperties(def *EntityTypeDef, et *schema.EntityType) error {
	for _, p := range def.Properties {
		typ, err := schema.ParsePrimitiveType(p.Type)
		if err != nil {
			return fmt.Errorf("property '%s': %w", p.Name, err)
		}
		generated, err := schema.ParseValueGenerated(p.ValueGenerated)
		if err != nil {
			return fmt.Errorf("property '%s': %w", p.Name, err)
		}
		opts := []schema.PropertyOption{schema.WithValueGenerated(generated)}
		if p.Nullable {
			opts = append(opts, schema.Nullable())
		}
		if p.ConcurrencyToken {
			opts = append(opts, schema.ConcurrencyToken())
		}
		if p.MaxLength != nil {
			opts = append(opts, schema.WithMaxLength(*p.MaxLength))
		}
		add := et.AddProperty
		if p.Shadow {
			add = et.AddShadowProperty
		}
		if _, err := add(p.Name, typ, opts...); err != nil {
			return err
		}
	}
	return nil
}

func properties(et *schema.EntityType, names []string) ([]*schema.Property, error) {
	result := make([]*schema.Property, len(names))
	for i, name := range names {
		p := et.FindProperty(name)
		if p == nil {
			return nil, fmt.Errorf("%w: '%s' on '%s'", ErrUnknownProperty, name, et.Name())
		}
		result[i] = p
	}
	return result, nil
}

func (b *builder) applyKeys(def *EntityTypeDef, et *schema.EntityType) error {
	if len(def.PrimaryKey) > 0 {
		props, err := properties(et, def.PrimaryKey)
		if err != nil {
			return err
		}
		if _, err := et.SetPrimaryKey(props...); err != nil {
			return err
		}
	}
	for _, names := range def.Keys {
		props, err := properties(et, names)
		if err != nil {
			return err
		}
		if _, err := et.AddKey(props, annotations.Explicit); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) applyForeignKeys(def *EntityTypeDef, et *schema.EntityType) error {
	for _, fkDef := range def.ForeignKeys {
		if err := b.addForeignKey(et, fkDef); err != nil {
			return fmt.Errorf("foreign key %v: %w", fkDef.Properties, err)
		}
	}
	return nil
}

func (b *builder) addForeignKey(et *schema.EntityType, def ForeignKeyDef) error {
	principal, err := b.entityType(def.Principal)
	if err != nil {
		return err
	}
	props, err := properties(et, def.Properties)
	if err != nil {
		return err
	}

	root := principal.RootType()
	key := root.FindPrimaryKey()
	if len(def.PrincipalKey) > 0 {
		keyProps, err := properties(root, def.PrincipalKey)
		if err != nil {
			return err
		}
		if key = root.FindKey(keyProps...); key == nil {
			if key, err = root.AddKey(keyProps, annotations.Convention); err != nil {
				return err
			}
		}
	}
	if key == nil {
		return fmt.Errorf("%w: '%s' has no primary key", ErrInvalidDocument, principal.Name())
	}

	fk, err := et.AddForeignKey(props, key, principal)
	if err != nil {
		return err
	}
	if def.Required != nil {
		if err := fk.SetRequired(*def.Required); err != nil {
			return err
		}
	}
	if def.DeleteBehavior != "" {
		behavior, err := schema.ParseDeleteBehavior(def.DeleteBehavior)
		if err != nil {
			return err
		}
		if err := fk.SetDeleteBehavior(behavior); err != nil {
			return err
		}
	}
	if err := fk.SetUnique(def.Unique); err != nil {
		return err
	}
	if err := fk.SetOwnership(def.Ownership); err != nil {
		return err
	}
	if def.DependentToPrincipal != "" {
		if _, err := fk.SetDependentToPrincipal(def.DependentToPrincipal); err != nil {
			return err
		}
	}
	if def.PrincipalToDependent != "" {
		if _, err := fk.SetPrincipalToDependent(def.PrincipalToDependent); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) applySkipNavigations(def *EntityTypeDef, et *schema.EntityType) error {
	for _, skipDef := range def.SkipNavigations {
		target, err := b.entityType(skipDef.Target)
		if err != nil {
			return err
		}
		collection := skipDef.Collection == nil || *skipDef.Collection
		skip, err := et.AddSkipNavigation(skipDef.Name, target, collection)
		if err != nil {
			return err
		}
		if skipDef.Join == "" {
			continue
		}
		fk, err := b.joinForeignKey(et, skipDef)
		if err != nil {
			return fmt.Errorf("skip navigation '%s': %w", skipDef.Name, err)
		}
		if err := skip.SetForeignKey(fk); err != nil {
			return err
		}
	}
	return nil
}

// joinForeignKey finds the foreign key of the join type that points at et
func (b *builder) joinForeignKey(et *schema.EntityType, def SkipNavigationDef) (*schema.ForeignKey, error) {
	join, err := b.entityType(def.Join)
	if err != nil {
		return nil, err
	}
	for _, fk := range join.GetForeignKeys() {
		if !et.IsAssignableTo(fk.PrincipalEntityType()) {
			continue
		}
		if len(def.ForeignKey) > 0 && !sameNames(fk.Properties(), def.ForeignKey) {
			continue
		}
		return fk, nil
	}
	return nil, fmt.Errorf("%w: no foreign key on '%s' targets '%s'", ErrUnknownForeignKey, join.Name(), et.Name())
}

func (b *builder) applyInverses(def *EntityTypeDef, et *schema.EntityType) error {
	for _, skipDef := range def.SkipNavigations {
		if skipDef.Inverse == "" {
			continue
		}
		skip := et.FindSkipNavigation(skipDef.Name)
		inverse := skip.TargetEntityType().FindSkipNavigation(skipDef.Inverse)
		if inverse == nil {
			return fmt.Errorf("skip navigation '%s': inverse '%s' not found on '%s'",
				skipDef.Name, skipDef.Inverse, skip.TargetEntityType().Name())
		}
		if err := skip.SetInverse(inverse); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) applyIndexes(def *EntityTypeDef, et *schema.EntityType) error {
	for _, idxDef := range def.Indexes {
		props, err := properties(et, idxDef.Properties)
		if err != nil {
			return err
		}
		idx, err := et.AddIndex(props, idxDef.Name)
		if err != nil {
			return err
		}
		if err := idx.SetUnique(idxDef.Unique); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) applyFacets(def *EntityTypeDef, et *schema.EntityType) error {
	if def.ChangeTracking != "" {
		strategy, err := schema.ParseChangeTrackingStrategy(def.ChangeTracking)
		if err != nil {
			return err
		}
		if err := et.SetChangeTrackingStrategy(strategy); err != nil {
			return err
		}
	}
	if def.MappingStrategy != "" {
		if err := et.SetMappingStrategy(def.MappingStrategy); err != nil {
			return err
		}
	}
	if def.Discriminator != "" {
		p := et.FindProperty(def.Discriminator)
		if p == nil {
			// an unknown discriminator is reported by validation
			if _, err := et.SetOrOverrideAnnotation(schema.AnnotationDiscriminatorProperty, def.Discriminator, annotations.Explicit); err != nil {
				return err
			}
		} else if err := et.SetDiscriminatorProperty(p); err != nil {
			return err
		}
	}
	if def.DiscriminatorValue != nil {
		if err := et.SetDiscriminatorValue(def.DiscriminatorValue); err != nil {
			return err
		}
	}
	return setAnnotations(&et.Annotatable, def.Annotations)
}

func (b *builder) applyData(def *EntityTypeDef, et *schema.EntityType) error {
	for _, values := range def.Data {
		seed := schema.SeedDatum{TypeName: et.Name(), Values: make(map[string]interface{}, len(values))}
		for name, value := range values {
			if name == storage.TypeColumn {
				typeName, ok := value.(string)
				if !ok {
					return fmt.Errorf("%w: seed %s must be a string", ErrInvalidDocument, storage.TypeColumn)
				}
				seed.TypeName = typeName
				continue
			}
			seed.Values[name] = value
		}
		if err := et.AddSeed(seed); err != nil {
			return err
		}
	}
	return nil
}

func setAnnotations(target *annotations.Annotatable, values map[string]interface{}) error {
	for name, value := range values {
		if _, err := target.SetOrOverrideAnnotation(name, value, annotations.Explicit); err != nil {
			return err
		}
	}
	return nil
}

func sameNames(props []*schema.Property, names []string) bool {
	if len(props) != len(names) {
		return false
	}
	for i, p := range props {
		if p.Name() != names[i] {
			return false
		}
	}
	return true
}
