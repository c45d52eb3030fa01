package schema

import (
	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// PropertyAccessor reads and writes a property on an entity instance.
// Properties without an accessor keep their values in the tracking entry.
type PropertyAccessor struct {
	Get func(entity interface{}) interface{}
	Set func(entity interface{}, value interface{})
}

// Property is a scalar member of an entity type
type Property struct {
	annotations.Annotatable

	name             string
	declaringType    *EntityType
	typ              PrimitiveType
	nullable         bool
	shadow           bool
	valueGenerated   ValueGenerated
	maxLength        *int
	concurrencyToken bool
	comparer         ValueComparer
	accessor         *PropertyAccessor
	source           ConfigurationSource
	index            int
}

// PropertyOption configures a property at creation time
type PropertyOption func(*Property)

// Nullable marks the property as accepting nil
func Nullable() PropertyOption {
	return func(p *Property) { p.nullable = true }
}

// WithValueGenerated sets the value generation strategy
func WithValueGenerated(v ValueGenerated) PropertyOption {
	return func(p *Property) { p.valueGenerated = v }
}

// WithMaxLength sets the maximum length facet
func WithMaxLength(n int) PropertyOption {
	return func(p *Property) { p.maxLength = &n }
}

// WithComparer sets a custom value comparer
func WithComparer(c ValueComparer) PropertyOption {
	return func(p *Property) { p.comparer = c }
}

// WithAccessor backs the property by a member of the entity instance
func WithAccessor(get func(entity interface{}) interface{}, set func(entity interface{}, value interface{})) PropertyOption {
	return func(p *Property) { p.accessor = &PropertyAccessor{Get: get, Set: set} }
}

// WithSource records who configured the property
func WithSource(source ConfigurationSource) PropertyOption {
	return func(p *Property) { p.source = source }
}

// ConcurrencyToken marks the property as an optimistic concurrency token
func ConcurrencyToken() PropertyOption {
	return func(p *Property) { p.concurrencyToken = true }
}

// Name returns the property name
func (p *Property) Name() string { return p.name }

// DeclaringEntityType returns the entity type that declares the property
func (p *Property) DeclaringEntityType() *EntityType { return p.declaringType }

// Type returns the primitive type of the property
func (p *Property) Type() PrimitiveType { return p.typ }

// IsNullable reports whether the property accepts nil
func (p *Property) IsNullable() bool { return p.nullable }

// IsShadowProperty reports whether the property has no member on the CLR type
func (p *Property) IsShadowProperty() bool { return p.shadow }

// ValueGenerated returns the value generation strategy
func (p *Property) ValueGenerated() ValueGenerated { return p.valueGenerated }

// MaxLength returns the maximum length facet, or nil
func (p *Property) MaxLength() *int { return p.maxLength }

// IsConcurrencyToken reports whether the property participates in optimistic concurrency
func (p *Property) IsConcurrencyToken() bool { return p.concurrencyToken }

// Accessor returns the member accessor, or nil for value-array backed properties
func (p *Property) Accessor() *PropertyAccessor { return p.accessor }

// Index returns the position of the property in its entity type's value
// array, or -1 before finalization
func (p *Property) Index() int { return p.index }

// ConfigurationSource returns who configured the property
func (p *Property) ConfigurationSource() ConfigurationSource { return p.source }

// HasCustomComparer reports whether a comparer was configured explicitly
func (p *Property) HasCustomComparer() bool { return p.comparer != nil }

// Comparer returns the configured comparer or the structural default
func (p *Property) Comparer() ValueComparer {
	if p.comparer != nil {
		return p.comparer
	}
	return DefaultComparer
}

// DisplayName returns EntityType.Property
func (p *Property) DisplayName() string {
	return p.declaringType.DisplayName() + "." + p.name
}

// IsKey reports whether the property is part of any key
func (p *Property) IsKey() bool {
	return len(p.ContainingKeys()) > 0
}

// IsPrimaryKey reports whether the property is part of the primary key
func (p *Property) IsPrimaryKey() bool {
	pk := p.declaringType.FindPrimaryKey()
	return pk != nil && pk.Contains(p)
}

// IsForeignKey reports whether the property is part of a foreign key
func (p *Property) IsForeignKey() bool {
	return len(p.ContainingForeignKeys()) > 0
}

// ContainingKeys returns every key in the hierarchy that includes the property
func (p *Property) ContainingKeys() []*Key {
	var result []*Key
	for _, key := range p.declaringType.RootType().allKeysInHierarchy() {
		if key.Contains(p) {
			result = append(result, key)
		}
	}
	return result
}

// ContainingForeignKeys returns every foreign key that includes the property
func (p *Property) ContainingForeignKeys() []*ForeignKey {
	var result []*ForeignKey
	for _, fk := range p.declaringType.RootType().allForeignKeysInHierarchy() {
		if fk.Contains(p) {
			result = append(result, fk)
		}
	}
	return result
}

// SetNullable changes nullability; key properties cannot become nullable
func (p *Property) SetNullable(nullable bool) error {
	if err := p.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	if nullable && p.IsKey() {
		return newError(ErrNullableKeyProperty,
			"The property '%s' cannot be marked as nullable because it is part of a key.", p.DisplayName())
	}
	p.nullable = nullable
	return nil
}

// SetValueGenerated changes the value generation strategy
func (p *Property) SetValueGenerated(v ValueGenerated) error {
	if err := p.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	p.valueGenerated = v
	return nil
}

// SetMaxLength changes the maximum length facet
func (p *Property) SetMaxLength(n *int) error {
	if err := p.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	p.maxLength = n
	return nil
}

// SetConcurrencyToken marks or unmarks the property as a concurrency token
func (p *Property) SetConcurrencyToken(token bool) error {
	if err := p.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	p.concurrencyToken = token
	return nil
}

// SetComparer configures a custom comparer
func (p *Property) SetComparer(c ValueComparer) error {
	if err := p.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	p.comparer = c
	return nil
}

// SetAccessor backs the property by a member of the entity instance
func (p *Property) SetAccessor(accessor *PropertyAccessor) error {
	if err := p.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	p.accessor = accessor
	return nil
}
