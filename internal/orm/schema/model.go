package schema

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// Model is the root of the metadata graph and the sole owner of its entity types
type Model struct {
	annotations.Annotatable

	mu          sync.RWMutex
	entityTypes map[string]*EntityType

	changeTrackingStrategy ChangeTrackingStrategy

	finalizeMu  sync.Mutex
	finalized   bool
	finalizeErr error
	readOnly    atomic.Bool
}

// NewModel creates an empty, mutable model
func NewModel() *Model {
	return &Model{
		entityTypes: make(map[string]*EntityType),
	}
}

func (m *Model) ensureMutable() error {
	if m.readOnly.Load() {
		return newError(ErrModelReadOnly,
			"The model cannot be changed because it has been finalized and is read-only.")
	}
	return nil
}

// IsReadOnly reports whether the model has been finalized successfully
func (m *Model) IsReadOnly() bool {
	return m.readOnly.Load()
}

// ChangeTrackingStrategy returns the model-wide change-tracking strategy
func (m *Model) ChangeTrackingStrategy() ChangeTrackingStrategy {
	return m.changeTrackingStrategy
}

// SetChangeTrackingStrategy sets the model-wide change-tracking strategy
func (m *Model) SetChangeTrackingStrategy(strategy ChangeTrackingStrategy) error {
	if err := m.ensureMutable(); err != nil {
		return err
	}
	m.changeTrackingStrategy = strategy
	return nil
}

// AddEntityType adds an entity type backed by a CLR type. Unless WithClrType is
// given, a CLR type with the same name is assumed.
func (m *Model) AddEntityType(name string, opts ...EntityTypeOption) (*EntityType, error) {
	et := &EntityType{
		name:   name,
		clr:    &ClrType{Name: name},
		model:  m,
		source: annotations.Explicit,
	}
	for _, opt := range opts {
		opt(et)
	}
	return m.addEntityType(et)
}

// AddShadowEntityType adds an entity type without CLR backing
func (m *Model) AddShadowEntityType(name string, opts ...EntityTypeOption) (*EntityType, error) {
	et := &EntityType{
		name:   name,
		model:  m,
		source: annotations.Explicit,
	}
	for _, opt := range opts {
		opt(et)
	}
	et.clr = nil
	return m.addEntityType(et)
}

func (m *Model) addEntityType(et *EntityType) (*EntityType, error) {
	if err := m.ensureMutable(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entityTypes[et.name]; exists {
		return nil, newError(ErrDuplicateEntityType,
			"The entity type '%s' cannot be added to the model because an entity type with the same name already exists.", et.name)
	}
	m.entityTypes[et.name] = et
	return et, nil
}

// FindEntityType returns the named entity type, or nil
func (m *Model) FindEntityType(name string) *EntityType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entityTypes[name]
}

// GetEntityTypes returns all entity types ordered by name
func (m *Model) GetEntityTypes() []*EntityType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*EntityType, 0, len(m.entityTypes))
	for _, et := range m.entityTypes {
		result = append(result, et)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].name < result[j].name
	})
	return result
}

// RemoveEntityType removes an entity type that nothing else refers to
func (m *Model) RemoveEntityType(et *EntityType) error {
	if err := m.ensureMutable(); err != nil {
		return err
	}
	if et.model != m {
		return newError(ErrModelMismatch,
			"The entity type '%s' cannot be removed because it belongs to a different model.", et.DisplayName())
	}
	if len(et.directDerived) > 0 {
		return newError(ErrEntityTypeInUse,
			"The entity type '%s' cannot be removed because '%s' is derived from it.",
			et.DisplayName(), et.GetDirectlyDerivedTypes()[0].DisplayName())
	}
	for _, other := range m.GetEntityTypes() {
		if other == et {
			continue
		}
		for _, fk := range other.foreignKeys {
			if fk.principalEntityType == et {
				return newError(ErrEntityTypeInUse,
					"The entity type '%s' cannot be removed because it is referenced by the foreign key %s on '%s'.",
					et.DisplayName(), FormatProperties(fk.properties), other.DisplayName())
			}
		}
		for _, skip := range other.skipNavigations {
			if skip.targetType == et {
				return newError(ErrEntityTypeInUse,
					"The entity type '%s' cannot be removed because it is targeted by the skip navigation '%s'.",
					et.DisplayName(), skip.DisplayName())
			}
		}
	}

	for _, fk := range et.GetDeclaredForeignKeys() {
		if err := et.RemoveForeignKey(fk); err != nil {
			return err
		}
	}
	if et.baseType != nil {
		et.baseType.directDerived = removeEntityType(et.baseType.directDerived, et)
	}

	m.mu.Lock()
	delete(m.entityTypes, et.name)
	m.mu.Unlock()
	return nil
}

// ProductVersion returns the product version stamped at finalization, or ""
func (m *Model) ProductVersion() string {
	v, _ := m.AnnotationValue(AnnotationProductVersion).(string)
	return v
}
