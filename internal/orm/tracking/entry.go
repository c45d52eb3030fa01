package tracking

import (
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// Typed is implemented by entity instances to name their entity type
type Typed interface {
	EntityTypeName() string
}

// ShadowEntity stands in for instances of entity types that have no CLR
// constructor. All of its values live in the tracking entry.
type ShadowEntity struct {
	TypeName string
}

// EntityTypeName implements Typed
func (s *ShadowEntity) EntityTypeName() string { return s.TypeName }

// FieldChange represents a change to a single property
type FieldChange struct {
	Property string
	OldValue interface{}
	NewValue interface{}
}

// InternalEntityEntry tracks one entity instance. Property values without an
// accessor, original values and navigation values without an accessor are
// held in arrays indexed by the metadata index of the member.
type InternalEntityEntry struct {
	manager    *StateManager
	entityType *schema.EntityType
	entity     interface{}
	state      EntityState

	values    []interface{}
	original  []interface{}
	lastSeen  []interface{}
	modified  []bool
	temporary []bool

	navigations []interface{}
	navSnapshot []interface{}

	principals  map[*schema.ForeignKey]*InternalEntityEntry
	identityKey []interface{}
}

func newEntry(sm *StateManager, et *schema.EntityType, entity interface{}) *InternalEntityEntry {
	n := et.PropertyCount()
	m := et.NavigationCount()
	return &InternalEntityEntry{
		manager:     sm,
		entityType:  et,
		entity:      entity,
		state:       Detached,
		values:      make([]interface{}, n),
		original:    make([]interface{}, n),
		lastSeen:    make([]interface{}, n),
		modified:    make([]bool, n),
		temporary:   make([]bool, n),
		navigations: make([]interface{}, m),
		navSnapshot: make([]interface{}, m),
		principals:  make(map[*schema.ForeignKey]*InternalEntityEntry),
	}
}

// Entity returns the tracked instance
func (e *InternalEntityEntry) Entity() interface{} { return e.entity }

// EntityType returns the entity type of the instance
func (e *InternalEntityEntry) EntityType() *schema.EntityType { return e.entityType }

// State returns the tracking state
func (e *InternalEntityEntry) State() EntityState { return e.state }

// GetCurrentValue returns the current value of p
func (e *InternalEntityEntry) GetCurrentValue(p *schema.Property) interface{} {
	if a := p.Accessor(); a != nil && a.Get != nil {
		return a.Get(e.entity)
	}
	return e.values[p.Index()]
}

func (e *InternalEntityEntry) setCurrentValue(p *schema.Property, value interface{}) {
	if a := p.Accessor(); a != nil && a.Set != nil {
		a.Set(e.entity, value)
		return
	}
	e.values[p.Index()] = value
}

// GetOriginalValue returns the value of p when the entry was last accepted
func (e *InternalEntityEntry) GetOriginalValue(p *schema.Property) interface{} {
	return e.original[p.Index()]
}

// IsModified reports whether p is marked modified
func (e *InternalEntityEntry) IsModified(p *schema.Property) bool {
	return e.modified[p.Index()]
}

// HasTemporaryValue reports whether p holds a placeholder the store will replace
func (e *InternalEntityEntry) HasTemporaryValue(p *schema.Property) bool {
	return e.temporary[p.Index()]
}

// Value returns the current value of the named property, or nil
func (e *InternalEntityEntry) Value(name string) interface{} {
	p := e.entityType.FindProperty(name)
	if p == nil {
		return nil
	}
	return e.GetCurrentValue(p)
}

// OriginalValue returns the original value of the named property, or nil
func (e *InternalEntityEntry) OriginalValue(name string) interface{} {
	p := e.entityType.FindProperty(name)
	if p == nil {
		return nil
	}
	return e.GetOriginalValue(p)
}

// Key returns the current primary key values
func (e *InternalEntityEntry) Key() []interface{} {
	pk := e.entityType.FindPrimaryKey()
	if pk == nil {
		return nil
	}
	return e.keyValues(pk.Properties())
}

func (e *InternalEntityEntry) keyValues(props []*schema.Property) []interface{} {
	values := make([]interface{}, len(props))
	for i, p := range props {
		values[i] = e.GetCurrentValue(p)
	}
	return values
}

// ModifiedProperties returns the properties marked modified
func (e *InternalEntityEntry) ModifiedProperties() []*schema.Property {
	var result []*schema.Property
	for _, p := range e.entityType.GetProperties() {
		if e.modified[p.Index()] {
			result = append(result, p)
		}
	}
	return result
}

// Changes returns the modified properties with their original and current values
func (e *InternalEntityEntry) Changes() []FieldChange {
	var changes []FieldChange
	for _, p := range e.ModifiedProperties() {
		changes = append(changes, FieldChange{
			Property: p.Name(),
			OldValue: e.GetOriginalValue(p),
			NewValue: e.GetCurrentValue(p),
		})
	}
	return changes
}

// Changed reports whether the named property is modified
func (e *InternalEntityEntry) Changed(name string) bool {
	p := e.entityType.FindProperty(name)
	return p != nil && e.modified[p.Index()]
}

// ChangedTo reports whether the named property is modified and now equals value
func (e *InternalEntityEntry) ChangedTo(name string, value interface{}) bool {
	p := e.entityType.FindProperty(name)
	if p == nil || !e.modified[p.Index()] {
		return false
	}
	return p.Comparer().Equals(e.GetCurrentValue(p), value)
}

// ChangedFrom reports whether the named property is modified and originally equaled value
func (e *InternalEntityEntry) ChangedFrom(name string, value interface{}) bool {
	p := e.entityType.FindProperty(name)
	if p == nil || !e.modified[p.Index()] {
		return false
	}
	return p.Comparer().Equals(e.GetOriginalValue(p), value)
}

// Reference returns the value of the named reference navigation, or nil
func (e *InternalEntityEntry) Reference(name string) interface{} {
	nav := e.entityType.FindNavigation(name)
	if nav == nil || nav.IsCollection() {
		return nil
	}
	return e.reference(nav)
}

// Collection returns the items of the named collection navigation
func (e *InternalEntityEntry) Collection(name string) []interface{} {
	nav := e.entityType.FindNavigation(name)
	if nav == nil || !nav.IsCollection() {
		return nil
	}
	return e.collection(nav)
}

func (e *InternalEntityEntry) reference(nav *schema.Navigation) interface{} {
	if a := nav.Accessor(); a != nil && a.Get != nil {
		return a.Get(e.entity)
	}
	return e.navigations[nav.Index()]
}

func (e *InternalEntityEntry) collection(nav *schema.Navigation) []interface{} {
	if a := nav.Accessor(); a != nil && a.Items != nil {
		return a.Items(e.entity)
	}
	items, _ := e.navigations[nav.Index()].([]interface{})
	return append([]interface{}(nil), items...)
}

// setReference writes a reference navigation and records it as observed
func (e *InternalEntityEntry) setReference(nav *schema.Navigation, value interface{}) {
	if a := nav.Accessor(); a != nil && a.Set != nil {
		a.Set(e.entity, value)
	} else {
		e.navigations[nav.Index()] = value
	}
	e.navSnapshot[nav.Index()] = value
}

// addToCollection adds item unless present and records it as observed
func (e *InternalEntityEntry) addToCollection(nav *schema.Navigation, item interface{}) {
	if !containsItem(e.collection(nav), item) {
		if a := nav.Accessor(); a != nil && a.Add != nil {
			a.Add(e.entity, item)
		} else {
			items, _ := e.navigations[nav.Index()].([]interface{})
			e.navigations[nav.Index()] = append(items, item)
		}
	}
	snapshot, _ := e.navSnapshot[nav.Index()].([]interface{})
	if !containsItem(snapshot, item) {
		e.navSnapshot[nav.Index()] = append(snapshot, item)
	}
}

// removeFromCollection removes item if present and records it as observed
func (e *InternalEntityEntry) removeFromCollection(nav *schema.Navigation, item interface{}) {
	if containsItem(e.collection(nav), item) {
		if a := nav.Accessor(); a != nil && a.Remove != nil {
			a.Remove(e.entity, item)
		} else {
			items, _ := e.navigations[nav.Index()].([]interface{})
			e.navigations[nav.Index()] = withoutItem(items, item)
		}
	}
	snapshot, _ := e.navSnapshot[nav.Index()].([]interface{})
	e.navSnapshot[nav.Index()] = withoutItem(snapshot, item)
}

// snapshotNavigations records the current navigation values as observed
func (e *InternalEntityEntry) snapshotNavigations() {
	for _, nav := range e.entityType.GetNavigations() {
		if nav.IsCollection() {
			e.navSnapshot[nav.Index()] = e.collection(nav)
		} else {
			e.navSnapshot[nav.Index()] = e.reference(nav)
		}
	}
}

// captureOriginal makes the current values the original ones
func (e *InternalEntityEntry) captureOriginal() {
	for _, p := range e.entityType.GetProperties() {
		i := p.Index()
		current := e.GetCurrentValue(p)
		e.original[i] = p.Comparer().Snapshot(current)
		e.lastSeen[i] = p.Comparer().Snapshot(current)
		e.modified[i] = false
		e.temporary[i] = false
	}
}

func (e *InternalEntityEntry) hasModifiedProperties() bool {
	for _, m := range e.modified {
		if m {
			return true
		}
	}
	return false
}

func (e *InternalEntityEntry) temporaryProperties() []string {
	var names []string
	for _, p := range e.entityType.GetProperties() {
		if e.temporary[p.Index()] {
			names = append(names, p.Name())
		}
	}
	return names
}

func (e *InternalEntityEntry) valueMap(original bool) map[string]interface{} {
	values := make(map[string]interface{}, len(e.values))
	for _, p := range e.entityType.GetProperties() {
		if original {
			values[p.Name()] = e.GetOriginalValue(p)
		} else {
			values[p.Name()] = e.GetCurrentValue(p)
		}
	}
	return values
}

func containsItem(items []interface{}, item interface{}) bool {
	for _, existing := range items {
		if existing == item {
			return true
		}
	}
	return false
}

func withoutItem(items []interface{}, item interface{}) []interface{} {
	result := make([]interface{}, 0, len(items))
	for _, existing := range items {
		if existing != item {
			result = append(result, existing)
		}
	}
	return result
}
