// Package definition reads and writes declarative model documents. A
// document describes entity types, their members, keys, relationships and
// seed data; Build turns it into a schema.Model and Export goes the other way.
package definition

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrUnknownProperty   = errors.New("unknown property")
	ErrUnknownForeignKey = errors.New("unknown foreign key")
	ErrInvalidDocument   = errors.New("invalid model document")
)

// Document is the serialized form of a model
type Document struct {
	Name           string                 `yaml:"name,omitempty"`
	ProductVersion string                 `yaml:"productVersion,omitempty"`
	ChangeTracking string                 `yaml:"changeTracking,omitempty"`
	Annotations    map[string]interface{} `yaml:"annotations,omitempty"`
	EntityTypes    []EntityTypeDef        `yaml:"entityTypes"`
}

// EntityTypeDef describes one entity type
type EntityTypeDef struct {
	Name               string                   `yaml:"name"`
	Base               string                   `yaml:"base,omitempty"`
	Shadow             bool                     `yaml:"shadow,omitempty"`
	PropertyBag        bool                     `yaml:"propertyBag,omitempty"`
	Abstract           bool                     `yaml:"abstract,omitempty"`
	Keyless            bool                     `yaml:"keyless,omitempty"`
	Owned              bool                     `yaml:"owned,omitempty"`
	ChangeTracking     string                   `yaml:"changeTracking,omitempty"`
	MappingStrategy    string                   `yaml:"mappingStrategy,omitempty"`
	Discriminator      string                   `yaml:"discriminator,omitempty"`
	DiscriminatorValue interface{}              `yaml:"discriminatorValue,omitempty"`
	Properties         []PropertyDef            `yaml:"properties,omitempty"`
	PrimaryKey         []string                 `yaml:"primaryKey,omitempty"`
	Keys               [][]string               `yaml:"keys,omitempty"`
	ForeignKeys        []ForeignKeyDef          `yaml:"foreignKeys,omitempty"`
	SkipNavigations    []SkipNavigationDef      `yaml:"skipNavigations,omitempty"`
	Indexes            []IndexDef               `yaml:"indexes,omitempty"`
	Data               []map[string]interface{} `yaml:"data,omitempty"`
	Annotations        map[string]interface{}   `yaml:"annotations,omitempty"`
}

// PropertyDef describes a scalar property
type PropertyDef struct {
	Name             string `yaml:"name"`
	Type             string `yaml:"type"`
	Nullable         bool   `yaml:"nullable,omitempty"`
	Shadow           bool   `yaml:"shadow,omitempty"`
	ValueGenerated   string `yaml:"valueGenerated,omitempty"`
	ConcurrencyToken bool   `yaml:"concurrencyToken,omitempty"`
	MaxLength        *int   `yaml:"maxLength,omitempty"`
}

// ForeignKeyDef describes a relationship from the declaring type to a
// principal. An empty PrincipalKey targets the principal's primary key;
// Required defaults to true unless a foreign key property is nullable.
type ForeignKeyDef struct {
	Properties           []string `yaml:"properties"`
	Principal            string   `yaml:"principal"`
	PrincipalKey         []string `yaml:"principalKey,omitempty"`
	Required             *bool    `yaml:"required,omitempty"`
	Unique               bool     `yaml:"unique,omitempty"`
	Ownership            bool     `yaml:"ownership,omitempty"`
	DeleteBehavior       string   `yaml:"deleteBehavior,omitempty"`
	DependentToPrincipal string   `yaml:"dependentToPrincipal,omitempty"`
	PrincipalToDependent string   `yaml:"principalToDependent,omitempty"`
}

// SkipNavigationDef describes a many-to-many navigation through a join type.
// ForeignKey names the properties of the join type's foreign key to the
// declaring type.
type SkipNavigationDef struct {
	Name       string   `yaml:"name"`
	Target     string   `yaml:"target"`
	Collection *bool    `yaml:"collection,omitempty"`
	Join       string   `yaml:"join,omitempty"`
	ForeignKey []string `yaml:"foreignKey,omitempty"`
	Inverse    string   `yaml:"inverse,omitempty"`
}

// IndexDef describes an index
type IndexDef struct {
	Name       string   `yaml:"name,omitempty"`
	Properties []string `yaml:"properties"`
	Unique     bool     `yaml:"unique,omitempty"`
}

// Parse decodes a YAML document. JSON input is accepted as well.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := doc.check(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Read decodes a document from r
func Read(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading model document: %w", err)
	}
	return Parse(data)
}

// LoadFile decodes the document stored at path
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model document: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Marshal encodes the document as YAML
func (d *Document) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// FindEntityType returns the named entity type definition, or nil
func (d *Document) FindEntityType(name string) *EntityTypeDef {
	for i := range d.EntityTypes {
		if d.EntityTypes[i].Name == name {
			return &d.EntityTypes[i]
		}
	}
	return nil
}

// check rejects documents that cannot describe a model at all. Structural
// problems of the described model are left to validation.
func (d *Document) check() error {
	seen := make(map[string]bool, len(d.EntityTypes))
	for i, et := range d.EntityTypes {
		if et.Name == "" {
			return fmt.Errorf("%w: entity type #%d has no name", ErrInvalidDocument, i+1)
		}
		if seen[et.Name] {
			return fmt.Errorf("%w: entity type '%s' is declared twice", ErrInvalidDocument, et.Name)
		}
		seen[et.Name] = true
		for j, p := range et.Properties {
			if p.Name == "" {
				return fmt.Errorf("%w: property #%d of '%s' has no name", ErrInvalidDocument, j+1, et.Name)
			}
		}
	}
	return nil
}
