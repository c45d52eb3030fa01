package schema

import (
	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// Key is a primary or alternate key: an ordered, non-empty set of non-nullable properties
type Key struct {
	annotations.Annotatable

	properties    []*Property
	declaringType *EntityType
	source        ConfigurationSource
}

// Properties returns the key properties in declaration order
func (k *Key) Properties() []*Property {
	return append([]*Property(nil), k.properties...)
}

// DeclaringEntityType returns the entity type the key is declared on
func (k *Key) DeclaringEntityType() *EntityType { return k.declaringType }

// ConfigurationSource returns who configured the key
func (k *Key) ConfigurationSource() ConfigurationSource { return k.source }

// IsPrimaryKey reports whether this is the primary key of its declaring type
func (k *Key) IsPrimaryKey() bool {
	return k.declaringType.primaryKey == k
}

// Contains reports whether the property is one of the key properties
func (k *Key) Contains(p *Property) bool {
	for _, kp := range k.properties {
		if kp == p {
			return true
		}
	}
	return false
}

// ReferencingForeignKeys returns every foreign key that targets this key
func (k *Key) ReferencingForeignKeys() []*ForeignKey {
	var result []*ForeignKey
	for _, et := range k.declaringType.model.GetEntityTypes() {
		for _, fk := range et.foreignKeys {
			if fk.principalKey == k {
				result = append(result, fk)
			}
		}
	}
	return result
}

// String renders the key as {'A', 'B'}
func (k *Key) String() string {
	return FormatProperties(k.properties)
}

func sameProperties(a, b []*Property) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Index is a named or unnamed, optionally unique, set of properties
type Index struct {
	annotations.Annotatable

	name          string
	properties    []*Property
	declaringType *EntityType
	unique        bool
}

// Name returns the index name, which may be empty
func (i *Index) Name() string { return i.name }

// Properties returns the indexed properties
func (i *Index) Properties() []*Property {
	return append([]*Property(nil), i.properties...)
}

// DeclaringEntityType returns the entity type the index is declared on
func (i *Index) DeclaringEntityType() *EntityType { return i.declaringType }

// IsUnique reports whether the index enforces uniqueness
func (i *Index) IsUnique() bool { return i.unique }

// SetUnique changes uniqueness of the index
func (i *Index) SetUnique(unique bool) error {
	if err := i.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	i.unique = unique
	return nil
}

// DisplayName returns the index name or its property list
func (i *Index) DisplayName() string {
	if i.name != "" {
		return "'" + i.name + "'"
	}
	return FormatProperties(i.properties)
}
