package schema

import (
	"sort"

	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// Well-known annotation names
const (
	AnnotationDiscriminatorProperty = "Discriminator"
	AnnotationDiscriminatorValue    = "DiscriminatorValue"
	AnnotationMappingStrategy       = "MappingStrategy"
	AnnotationProductVersion        = "ProductVersion"
)

// Inheritance mapping strategies
const (
	MappingTPH = "TPH"
	MappingTPT = "TPT"
	MappingTPC = "TPC"
)

// EntityType is a mapped shape in the model
type EntityType struct {
	annotations.Annotatable

	name          string
	clr           *ClrType
	model         *Model
	baseType      *EntityType
	directDerived []*EntityType

	properties      []*Property
	primaryKey      *Key
	keys            []*Key
	foreignKeys     []*ForeignKey
	navigations     []*Navigation
	skipNavigations []*SkipNavigation
	indexes         []*Index

	keyless     bool
	owned       bool
	propertyBag bool
	seeds       []SeedDatum

	changeTrackingStrategy *ChangeTrackingStrategy
	source                 ConfigurationSource

	// populated by Finalize
	propertyCount   int
	navigationCount int
}

// EntityTypeOption configures an entity type at creation time
type EntityTypeOption func(*EntityType)

// WithClrType backs the entity type by the given CLR type
func WithClrType(clr *ClrType) EntityTypeOption {
	return func(et *EntityType) { et.clr = clr }
}

// AsOwned marks the entity type as owned
func AsOwned() EntityTypeOption {
	return func(et *EntityType) { et.owned = true }
}

// AsKeyless marks the entity type as having no key
func AsKeyless() EntityTypeOption {
	return func(et *EntityType) { et.keyless = true }
}

// WithEntitySource records who configured the entity type
func WithEntitySource(source ConfigurationSource) EntityTypeOption {
	return func(et *EntityType) { et.source = source }
}

// Name returns the entity type name
func (et *EntityType) Name() string { return et.name }

// DisplayName returns the name used in messages
func (et *EntityType) DisplayName() string { return et.name }

// ClrType returns the backing CLR type, or nil for shadow entity types
func (et *EntityType) ClrType() *ClrType { return et.clr }

// Model returns the owning model
func (et *EntityType) Model() *Model { return et.model }

// BaseType returns the base entity type, or nil
func (et *EntityType) BaseType() *EntityType { return et.baseType }

// ConfigurationSource returns who configured the entity type
func (et *EntityType) ConfigurationSource() ConfigurationSource { return et.source }

// IsShadow reports whether the entity type has no CLR backing
func (et *EntityType) IsShadow() bool { return et.clr == nil }

// IsAbstract reports whether the CLR type is abstract
func (et *EntityType) IsAbstract() bool { return et.clr != nil && et.clr.Abstract }

// IsKeyless reports whether the entity type was explicitly marked keyless
func (et *EntityType) IsKeyless() bool { return et.keyless }

// IsOwned reports whether the entity type is owned
func (et *EntityType) IsOwned() bool { return et.owned }

// IsPropertyBag reports whether a shadow entity type was explicitly accepted
func (et *EntityType) IsPropertyBag() bool { return et.propertyBag }

// PropertyCount returns the number of properties including inherited ones.
// Valid after finalization.
func (et *EntityType) PropertyCount() int { return et.propertyCount }

// NavigationCount returns the number of navigations including inherited ones.
// Valid after finalization.
func (et *EntityType) NavigationCount() int { return et.navigationCount }

// RootType returns the topmost base type
func (et *EntityType) RootType() *EntityType {
	root := et
	for root.baseType != nil {
		root = root.baseType
	}
	return root
}

// IsAssignableTo reports whether et is other or derives from it
func (et *EntityType) IsAssignableTo(other *EntityType) bool {
	for t := et; t != nil; t = t.baseType {
		if t == other {
			return true
		}
	}
	return false
}

// GetDirectlyDerivedTypes returns the immediate derived types ordered by name
func (et *EntityType) GetDirectlyDerivedTypes() []*EntityType {
	result := append([]*EntityType(nil), et.directDerived...)
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

// GetDerivedTypes returns all descendants, breadth first
func (et *EntityType) GetDerivedTypes() []*EntityType {
	var result []*EntityType
	queue := et.GetDirectlyDerivedTypes()
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		result = append(result, next)
		queue = append(queue, next.GetDirectlyDerivedTypes()...)
	}
	return result
}

// GetHierarchy returns the root type followed by all of its descendants
func (et *EntityType) GetHierarchy() []*EntityType {
	root := et.RootType()
	return append([]*EntityType{root}, root.GetDerivedTypes()...)
}

// GetChangeTrackingStrategy returns the entity type override or the model default
func (et *EntityType) GetChangeTrackingStrategy() ChangeTrackingStrategy {
	if et.changeTrackingStrategy != nil {
		return *et.changeTrackingStrategy
	}
	return et.model.ChangeTrackingStrategy()
}

// SetChangeTrackingStrategy overrides the model change-tracking strategy
func (et *EntityType) SetChangeTrackingStrategy(strategy ChangeTrackingStrategy) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	et.changeTrackingStrategy = &strategy
	return nil
}

// SetKeyless marks the entity type as keyless; it fails if a key is defined
func (et *EntityType) SetKeyless(keyless bool) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	if keyless && len(et.keys) > 0 {
		return newError(ErrKeylessTypeWithKey,
			"The entity type '%s' cannot be marked as keyless because it contains a key.", et.DisplayName())
	}
	et.keyless = keyless
	return nil
}

// SetOwned marks the entity type as owned
func (et *EntityType) SetOwned(owned bool) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	et.owned = owned
	return nil
}

// SetPropertyBag accepts a shadow entity type as a property bag
func (et *EntityType) SetPropertyBag(bag bool) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	et.propertyBag = bag
	return nil
}

// HasBaseType sets or clears the base type
func (et *EntityType) HasBaseType(base *EntityType) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	if base == et.baseType {
		return nil
	}
	if base != nil {
		if base.model != et.model {
			return newError(ErrModelMismatch,
				"The entity type '%s' cannot inherit from '%s' because they belong to different models.",
				et.DisplayName(), base.DisplayName())
		}
		if base.IsAssignableTo(et) {
			return newError(ErrCircularInheritance,
				"The entity type '%s' cannot inherit from '%s' because '%s' is a descendant of '%s'.",
				et.DisplayName(), base.DisplayName(), base.DisplayName(), et.DisplayName())
		}
		if len(et.keys) > 0 {
			return newError(ErrDerivedTypeKey,
				"A key cannot be configured on '%s' because it is a derived type. The key must be configured on the root type '%s'.",
				et.DisplayName(), base.RootType().DisplayName())
		}
		for _, t := range append([]*EntityType{et}, et.GetDerivedTypes()...) {
			for _, name := range t.declaredMemberNames() {
				if kind := base.findMemberUpward(name); kind != "" {
					return newError(ErrDuplicateProperty,
						"The entity type '%s' cannot inherit from '%s' because the %s '%s' is declared on both.",
						et.DisplayName(), base.DisplayName(), kind, name)
				}
			}
		}
	}

	if et.baseType != nil {
		et.baseType.directDerived = removeEntityType(et.baseType.directDerived, et)
	}
	et.baseType = base
	if base != nil {
		base.directDerived = append(base.directDerived, et)
	}
	return nil
}

func removeEntityType(list []*EntityType, target *EntityType) []*EntityType {
	for i, t := range list {
		if t == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// AddProperty adds a property backed by the CLR type or the tracking value array
func (et *EntityType) AddProperty(name string, typ PrimitiveType, opts ...PropertyOption) (*Property, error) {
	return et.addProperty(name, typ, false, opts)
}

// AddShadowProperty adds a property that only exists in metadata
func (et *EntityType) AddShadowProperty(name string, typ PrimitiveType, opts ...PropertyOption) (*Property, error) {
	return et.addProperty(name, typ, true, opts)
}

func (et *EntityType) addProperty(name string, typ PrimitiveType, shadow bool, opts []PropertyOption) (*Property, error) {
	if err := et.model.ensureMutable(); err != nil {
		return nil, err
	}
	if kind := et.findMemberInHierarchy(name); kind != "" {
		return nil, newError(ErrDuplicateProperty,
			"The property '%s' cannot be added to the entity type '%s' because a %s with the same name already exists in its hierarchy.",
			name, et.DisplayName(), kind)
	}

	p := &Property{
		name:          name,
		declaringType: et,
		typ:           typ,
		shadow:        shadow,
		source:        annotations.Explicit,
		index:         -1,
	}
	for _, opt := range opts {
		opt(p)
	}
	et.properties = append(et.properties, p)
	return p, nil
}

// FindProperty returns the named property declared on this type or a base, or nil
func (et *EntityType) FindProperty(name string) *Property {
	for t := et; t != nil; t = t.baseType {
		if p := t.FindDeclaredProperty(name); p != nil {
			return p
		}
	}
	return nil
}

// FindDeclaredProperty returns the named property declared on this type, or nil
func (et *EntityType) FindDeclaredProperty(name string) *Property {
	for _, p := range et.properties {
		if p.name == name {
			return p
		}
	}
	return nil
}

// GetDeclaredProperties returns the properties declared on this type
func (et *EntityType) GetDeclaredProperties() []*Property {
	return append([]*Property(nil), et.properties...)
}

// GetProperties returns inherited properties first, then declared ones
func (et *EntityType) GetProperties() []*Property {
	if et.baseType == nil {
		return et.GetDeclaredProperties()
	}
	return append(et.baseType.GetProperties(), et.properties...)
}

// RemoveProperty removes a declared property that is not used by any key, foreign key or index
func (et *EntityType) RemoveProperty(p *Property) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	if keys := p.ContainingKeys(); len(keys) > 0 {
		return newError(ErrEntityTypeInUse,
			"The property '%s' cannot be removed because it is used in the key %s on '%s'.",
			p.DisplayName(), keys[0], keys[0].declaringType.DisplayName())
	}
	if fks := p.ContainingForeignKeys(); len(fks) > 0 {
		return newError(ErrEntityTypeInUse,
			"The property '%s' cannot be removed because it is used in the foreign key %s on '%s'.",
			p.DisplayName(), FormatProperties(fks[0].properties), fks[0].declaringEntityType.DisplayName())
	}
	for _, t := range et.GetHierarchy() {
		for _, idx := range t.indexes {
			for _, ip := range idx.properties {
				if ip == p {
					return newError(ErrEntityTypeInUse,
						"The property '%s' cannot be removed because it is used in the index %s on '%s'.",
						p.DisplayName(), idx.DisplayName(), t.DisplayName())
				}
			}
		}
	}
	for i, declared := range et.properties {
		if declared == p {
			et.properties = append(et.properties[:i], et.properties[i+1:]...)
			return nil
		}
	}
	return nil
}

// SetPrimaryKey replaces the primary key. A previous primary key still
// referenced by foreign keys is kept as an alternate key.
func (et *EntityType) SetPrimaryKey(properties ...*Property) (*Key, error) {
	if err := et.model.ensureMutable(); err != nil {
		return nil, err
	}
	if err := et.checkKeyProperties(properties); err != nil {
		return nil, err
	}

	if et.primaryKey != nil && sameProperties(et.primaryKey.properties, properties) {
		return et.primaryKey, nil
	}

	if old := et.primaryKey; old != nil {
		et.primaryKey = nil
		if len(old.ReferencingForeignKeys()) == 0 {
			et.keys = removeKey(et.keys, old)
		}
	}

	key := et.FindKey(properties...)
	if key == nil {
		key = &Key{
			properties:    append([]*Property(nil), properties...),
			declaringType: et,
			source:        annotations.Explicit,
		}
		et.keys = append(et.keys, key)
	}
	key.source = annotations.Explicit
	et.primaryKey = key
	return key, nil
}

// AddKey adds an alternate key
func (et *EntityType) AddKey(properties []*Property, source ConfigurationSource) (*Key, error) {
	if err := et.model.ensureMutable(); err != nil {
		return nil, err
	}
	if err := et.checkKeyProperties(properties); err != nil {
		return nil, err
	}
	if et.FindKey(properties...) != nil {
		return nil, newError(ErrInvalidKey,
			"The key %s cannot be added to the entity type '%s' because a key on the same properties already exists.",
			FormatProperties(properties), et.DisplayName())
	}
	key := &Key{
		properties:    append([]*Property(nil), properties...),
		declaringType: et,
		source:        source,
	}
	et.keys = append(et.keys, key)
	return key, nil
}

func (et *EntityType) checkKeyProperties(properties []*Property) error {
	if et.keyless {
		return newError(ErrKeylessTypeWithKey,
			"The key %s cannot be added to the keyless type '%s'.", FormatProperties(properties), et.DisplayName())
	}
	if et.baseType != nil {
		return newError(ErrDerivedTypeKey,
			"A key cannot be configured on '%s' because it is a derived type. The key must be configured on the root type '%s'.",
			et.DisplayName(), et.RootType().DisplayName())
	}
	if len(properties) == 0 {
		return newError(ErrInvalidKey,
			"A key on the entity type '%s' cannot be empty.", et.DisplayName())
	}
	seen := make(map[*Property]bool, len(properties))
	for _, p := range properties {
		if seen[p] {
			return newError(ErrInvalidKey,
				"The property '%s' appears more than once in the key %s.", p.name, FormatProperties(properties))
		}
		seen[p] = true
		if !et.IsAssignableTo(p.declaringType) {
			return newError(ErrKeyPropertyNotInHierarchy,
				"The property '%s' cannot be part of a key on '%s' because it is declared on the entity type '%s'.",
				p.name, et.DisplayName(), p.declaringType.DisplayName())
		}
		if p.nullable {
			return newError(ErrNullableKeyProperty,
				"The property '%s' cannot be part of a key because it is nullable.", p.DisplayName())
		}
	}
	return nil
}

// FindPrimaryKey returns the primary key of the root type, or nil
func (et *EntityType) FindPrimaryKey() *Key {
	return et.RootType().primaryKey
}

// FindKey returns the key on exactly these properties, or nil
func (et *EntityType) FindKey(properties ...*Property) *Key {
	for _, key := range et.RootType().keys {
		if sameProperties(key.properties, properties) {
			return key
		}
	}
	return nil
}

// GetKeys returns all keys of the hierarchy
func (et *EntityType) GetKeys() []*Key {
	return append([]*Key(nil), et.RootType().keys...)
}

// RemoveKey removes an unreferenced key
func (et *EntityType) RemoveKey(key *Key) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	if fks := key.ReferencingForeignKeys(); len(fks) > 0 {
		return newError(ErrEntityTypeInUse,
			"The key %s cannot be removed from '%s' because it is referenced by a foreign key in the entity type '%s'.",
			key, et.DisplayName(), fks[0].declaringEntityType.DisplayName())
	}
	if et.primaryKey == key {
		et.primaryKey = nil
	}
	et.keys = removeKey(et.keys, key)
	return nil
}

func removeKey(list []*Key, target *Key) []*Key {
	for i, k := range list {
		if k == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (et *EntityType) allKeysInHierarchy() []*Key {
	return et.RootType().keys
}

func (et *EntityType) allForeignKeysInHierarchy() []*ForeignKey {
	var result []*ForeignKey
	for _, t := range et.GetHierarchy() {
		result = append(result, t.foreignKeys...)
	}
	return result
}

// AddForeignKey adds a foreign key from properties on this type to principalKey
func (et *EntityType) AddForeignKey(properties []*Property, principalKey *Key, principalType *EntityType) (*ForeignKey, error) {
	if err := et.model.ensureMutable(); err != nil {
		return nil, err
	}
	if principalType.model != et.model || principalKey.declaringType != principalType.RootType() {
		return nil, newError(ErrModelMismatch,
			"The key %s does not belong to the entity type '%s'.", principalKey, principalType.DisplayName())
	}
	if len(properties) == 0 {
		return nil, newError(ErrInvalidKey,
			"A foreign key on the entity type '%s' cannot be empty.", et.DisplayName())
	}
	if len(properties) != len(principalKey.properties) {
		return nil, newError(ErrForeignKeyCountMismatch,
			"The number of properties specified for the foreign key %s on entity type '%s' does not match the number of properties in the principal key %s on entity type '%s'.",
			FormatProperties(properties), et.DisplayName(), principalKey, principalType.DisplayName())
	}
	for _, p := range properties {
		if !et.IsAssignableTo(p.declaringType) {
			return nil, newError(ErrKeyPropertyNotInHierarchy,
				"The property '%s' cannot be part of a foreign key on '%s' because it is declared on the entity type '%s'.",
				p.name, et.DisplayName(), p.declaringType.DisplayName())
		}
	}
	for _, t := range append(et.baseTypes(), et) {
		for _, existing := range t.foreignKeys {
			if sameProperties(existing.properties, properties) &&
				existing.principalKey == principalKey &&
				existing.principalEntityType == principalType {
				return nil, newError(ErrDuplicateForeignKey,
					"The foreign key %s targeting the key %s on '%s' cannot be added to the entity type '%s' because a foreign key on the same properties already exists on '%s' and also targets the key %s on '%s'.",
					FormatProperties(properties), principalKey, principalType.DisplayName(), et.DisplayName(),
					t.DisplayName(), principalKey, principalType.DisplayName())
			}
		}
	}

	required := true
	for _, p := range properties {
		if p.nullable {
			required = false
		}
	}
	behavior := DeleteSetNull
	if required {
		behavior = DeleteCascade
	}

	fk := &ForeignKey{
		properties:          append([]*Property(nil), properties...),
		principalKey:        principalKey,
		principalEntityType: principalType,
		declaringEntityType: et,
		required:            required,
		deleteBehavior:      behavior,
		source:              annotations.Explicit,
	}
	et.foreignKeys = append(et.foreignKeys, fk)
	return fk, nil
}

func (et *EntityType) baseTypes() []*EntityType {
	var result []*EntityType
	for t := et.baseType; t != nil; t = t.baseType {
		result = append(result, t)
	}
	return result
}

// GetDeclaredForeignKeys returns the foreign keys declared on this type
func (et *EntityType) GetDeclaredForeignKeys() []*ForeignKey {
	return append([]*ForeignKey(nil), et.foreignKeys...)
}

// GetForeignKeys returns inherited foreign keys first, then declared ones
func (et *EntityType) GetForeignKeys() []*ForeignKey {
	if et.baseType == nil {
		return et.GetDeclaredForeignKeys()
	}
	return append(et.baseType.GetForeignKeys(), et.foreignKeys...)
}

// GetReferencingForeignKeys returns foreign keys whose principal is this type or a base
func (et *EntityType) GetReferencingForeignKeys() []*ForeignKey {
	var result []*ForeignKey
	for _, t := range et.model.GetEntityTypes() {
		for _, fk := range t.foreignKeys {
			if et.IsAssignableTo(fk.principalEntityType) {
				result = append(result, fk)
			}
		}
	}
	return result
}

// RemoveForeignKey removes a declared foreign key and its navigations
func (et *EntityType) RemoveForeignKey(fk *ForeignKey) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	for _, t := range et.model.GetEntityTypes() {
		for _, skip := range t.skipNavigations {
			if skip.foreignKey == fk {
				return newError(ErrEntityTypeInUse,
					"The foreign key %s cannot be removed from '%s' because it is used by the skip navigation '%s'.",
					FormatProperties(fk.properties), et.DisplayName(), skip.DisplayName())
			}
		}
	}
	if fk.dependentToPrincipal != nil {
		fk.declaringEntityType.removeNavigation(fk.dependentToPrincipal)
		fk.dependentToPrincipal = nil
	}
	if fk.principalToDependent != nil {
		fk.principalEntityType.removeNavigation(fk.principalToDependent)
		fk.principalToDependent = nil
	}
	for i, existing := range et.foreignKeys {
		if existing == fk {
			et.foreignKeys = append(et.foreignKeys[:i], et.foreignKeys[i+1:]...)
			break
		}
	}
	return nil
}

// AddNavigation adds a navigation for fk on this type
func (et *EntityType) AddNavigation(name string, fk *ForeignKey, pointsToPrincipal bool) (*Navigation, error) {
	if pointsToPrincipal {
		if fk.declaringEntityType != et {
			return nil, newError(ErrInvalidNavigation,
				"The navigation '%s' cannot be added to '%s' because the foreign key %s is declared on '%s'.",
				name, et.DisplayName(), FormatProperties(fk.properties), fk.declaringEntityType.DisplayName())
		}
		return fk.SetDependentToPrincipal(name)
	}
	if fk.principalEntityType != et {
		return nil, newError(ErrInvalidNavigation,
			"The navigation '%s' cannot be added to '%s' because the foreign key %s targets '%s'.",
			name, et.DisplayName(), FormatProperties(fk.properties), fk.principalEntityType.DisplayName())
	}
	return fk.SetPrincipalToDependent(name)
}

func (et *EntityType) removeNavigation(nav *Navigation) {
	for i, existing := range et.navigations {
		if existing == nav {
			et.navigations = append(et.navigations[:i], et.navigations[i+1:]...)
			return
		}
	}
}

// FindNavigation returns the named navigation declared on this type or a base, or nil
func (et *EntityType) FindNavigation(name string) *Navigation {
	for t := et; t != nil; t = t.baseType {
		for _, nav := range t.navigations {
			if nav.name == name {
				return nav
			}
		}
	}
	return nil
}

// GetDeclaredNavigations returns the navigations declared on this type
func (et *EntityType) GetDeclaredNavigations() []*Navigation {
	return append([]*Navigation(nil), et.navigations...)
}

// GetNavigations returns inherited navigations first, then declared ones
func (et *EntityType) GetNavigations() []*Navigation {
	if et.baseType == nil {
		return et.GetDeclaredNavigations()
	}
	return append(et.baseType.GetNavigations(), et.navigations...)
}

// AddSkipNavigation adds a many-to-many navigation to target
func (et *EntityType) AddSkipNavigation(name string, target *EntityType, collection bool) (*SkipNavigation, error) {
	if err := et.model.ensureMutable(); err != nil {
		return nil, err
	}
	if target.model != et.model {
		return nil, newError(ErrModelMismatch,
			"The skip navigation '%s' cannot target '%s' because it belongs to a different model.", name, target.DisplayName())
	}
	if kind := et.findMemberInHierarchy(name); kind != "" {
		return nil, newError(ErrDuplicateNavigation,
			"The navigation '%s' cannot be added to the entity type '%s' because a %s with the same name already exists in its hierarchy.",
			name, et.DisplayName(), kind)
	}
	skip := &SkipNavigation{
		name:          name,
		declaringType: et,
		targetType:    target,
		collection:    collection,
	}
	et.skipNavigations = append(et.skipNavigations, skip)
	return skip, nil
}

// FindSkipNavigation returns the named skip navigation on this type or a base, or nil
func (et *EntityType) FindSkipNavigation(name string) *SkipNavigation {
	for t := et; t != nil; t = t.baseType {
		for _, skip := range t.skipNavigations {
			if skip.name == name {
				return skip
			}
		}
	}
	return nil
}

// GetDeclaredSkipNavigations returns the skip navigations declared on this type
func (et *EntityType) GetDeclaredSkipNavigations() []*SkipNavigation {
	return append([]*SkipNavigation(nil), et.skipNavigations...)
}

// AddIndex adds an index over properties of this type
func (et *EntityType) AddIndex(properties []*Property, name string) (*Index, error) {
	if err := et.model.ensureMutable(); err != nil {
		return nil, err
	}
	if len(properties) == 0 {
		return nil, newError(ErrInvalidKey,
			"An index on the entity type '%s' cannot be empty.", et.DisplayName())
	}
	for _, p := range properties {
		if !et.IsAssignableTo(p.declaringType) {
			return nil, newError(ErrKeyPropertyNotInHierarchy,
				"The property '%s' cannot be part of an index on '%s' because it is declared on the entity type '%s'.",
				p.name, et.DisplayName(), p.declaringType.DisplayName())
		}
	}
	for _, t := range append(et.baseTypes(), et) {
		for _, existing := range t.indexes {
			if sameProperties(existing.properties, properties) && existing.name == name {
				return nil, newError(ErrDuplicateIndex,
					"The index %s cannot be added to the entity type '%s' because an index on the same properties already exists on '%s'.",
					FormatProperties(properties), et.DisplayName(), t.DisplayName())
			}
		}
	}
	idx := &Index{
		name:          name,
		properties:    append([]*Property(nil), properties...),
		declaringType: et,
	}
	et.indexes = append(et.indexes, idx)
	return idx, nil
}

// GetDeclaredIndexes returns the indexes declared on this type
func (et *EntityType) GetDeclaredIndexes() []*Index {
	return append([]*Index(nil), et.indexes...)
}

// GetIndexes returns inherited indexes first, then declared ones
func (et *EntityType) GetIndexes() []*Index {
	if et.baseType == nil {
		return et.GetDeclaredIndexes()
	}
	return append(et.baseType.GetIndexes(), et.indexes...)
}

// RemoveIndex removes a declared index
func (et *EntityType) RemoveIndex(idx *Index) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	for i, existing := range et.indexes {
		if existing == idx {
			et.indexes = append(et.indexes[:i], et.indexes[i+1:]...)
			return nil
		}
	}
	return nil
}

// HasData adds seed entries of exactly this type
func (et *EntityType) HasData(values ...map[string]interface{}) error {
	for _, v := range values {
		if err := et.AddSeed(SeedDatum{TypeName: et.name, Values: v}); err != nil {
			return err
		}
	}
	return nil
}

// AddSeed adds a seed entry. TypeName names the runtime type of the seeded instance.
func (et *EntityType) AddSeed(seed SeedDatum) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	if seed.TypeName == "" {
		seed.TypeName = et.name
	}
	et.seeds = append(et.seeds, seed)
	return nil
}

// GetSeedData returns the seed entries in insertion order
func (et *EntityType) GetSeedData() []SeedDatum {
	return append([]SeedDatum(nil), et.seeds...)
}

// SetDiscriminatorProperty selects the property that distinguishes types in the hierarchy
func (et *EntityType) SetDiscriminatorProperty(p *Property) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	if p == nil {
		_, err := et.RemoveAnnotation(AnnotationDiscriminatorProperty, annotations.Explicit)
		return err
	}
	_, err := et.SetOrOverrideAnnotation(AnnotationDiscriminatorProperty, p.name, annotations.Explicit)
	return err
}

// GetDiscriminatorProperty returns the discriminator property configured on the root, or nil
func (et *EntityType) GetDiscriminatorProperty() *Property {
	root := et.RootType()
	name, ok := root.AnnotationValue(AnnotationDiscriminatorProperty).(string)
	if !ok {
		return nil
	}
	return root.FindProperty(name)
}

// SetDiscriminatorValue sets the discriminator value for this type
func (et *EntityType) SetDiscriminatorValue(value interface{}) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	_, err := et.SetOrOverrideAnnotation(AnnotationDiscriminatorValue, value, annotations.Explicit)
	return err
}

// GetDiscriminatorValue returns the discriminator value for this type, or nil
func (et *EntityType) GetDiscriminatorValue() interface{} {
	return et.AnnotationValue(AnnotationDiscriminatorValue)
}

// SetMappingStrategy selects TPH, TPT or TPC for the hierarchy rooted here
func (et *EntityType) SetMappingStrategy(strategy string) error {
	if err := et.model.ensureMutable(); err != nil {
		return err
	}
	_, err := et.SetOrOverrideAnnotation(AnnotationMappingStrategy, strategy, annotations.Explicit)
	return err
}

// GetMappingStrategy returns the strategy of the hierarchy, defaulting to TPH
func (et *EntityType) GetMappingStrategy() string {
	if s, ok := et.RootType().AnnotationValue(AnnotationMappingStrategy).(string); ok && s != "" {
		return s
	}
	return MappingTPH
}

// declaredMemberNames lists the names of properties and navigations declared here
func (et *EntityType) declaredMemberNames() []string {
	names := make([]string, 0, len(et.properties)+len(et.navigations)+len(et.skipNavigations))
	for _, p := range et.properties {
		names = append(names, p.name)
	}
	for _, n := range et.navigations {
		names = append(names, n.name)
	}
	for _, s := range et.skipNavigations {
		names = append(names, s.name)
	}
	return names
}

// findMemberUpward returns the kind of member named name on this type or a base
func (et *EntityType) findMemberUpward(name string) string {
	for t := et; t != nil; t = t.baseType {
		if kind := t.findDeclaredMember(name); kind != "" {
			return kind
		}
	}
	return ""
}

// findMemberInHierarchy also looks at derived types, since they would inherit the new member
func (et *EntityType) findMemberInHierarchy(name string) string {
	if kind := et.findMemberUpward(name); kind != "" {
		return kind
	}
	for _, d := range et.GetDerivedTypes() {
		if kind := d.findDeclaredMember(name); kind != "" {
			return kind
		}
	}
	return ""
}

func (et *EntityType) findDeclaredMember(name string) string {
	for _, p := range et.properties {
		if p.name == name {
			return "property"
		}
	}
	for _, n := range et.navigations {
		if n.name == name {
			return "navigation"
		}
	}
	for _, s := range et.skipNavigations {
		if s.name == name {
			return "skip navigation"
		}
	}
	return ""
}
