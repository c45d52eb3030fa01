// Package tracking tracks entity instances against a finalized model. A
// StateManager owns the entries of one unit of work together with its change
// detector and navigation fixer; it is not safe for concurrent use.
package tracking

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

// Observer receives tracking and save lifecycle events
type Observer interface {
	EntityTracked(entry *InternalEntityEntry)
	StateChanged(entry *InternalEntityEntry, oldState, newState EntityState)
	SavingChanges(ctx context.Context, entries []*InternalEntityEntry) error
	SavedChanges(ctx context.Context, count int)
	SaveChangesFailed(ctx context.Context, err error)
}

type nopObserver struct{}

func (nopObserver) EntityTracked(*InternalEntityEntry) {}
func (nopObserver) StateChanged(*InternalEntityEntry, EntityState, EntityState) {}
func (nopObserver) SavingChanges(context.Context, []*InternalEntityEntry) error { return nil }
func (nopObserver) SavedChanges(context.Context, int) {}
func (nopObserver) SaveChangesFailed(context.Context, error) {}

// trackingMode selects the state given to newly reached instances
type trackingMode int

const (
	modeAdd trackingMode = iota
	modeAttach
	modeUpdate
)

// StateManager tracks the entity instances of one unit of work
type StateManager struct {
	model      *schema.Model
	logger     *zap.Logger
	observer   Observer
	sensitive  bool
	autoDetect bool

	entries  []*InternalEntityEntry
	byEntity map[interface{}]*InternalEntityEntry
	identity map[*schema.EntityType]*identityMap

	detector *ChangeDetector
	fixer    *NavigationFixer

	tempCounter int64
	busy        atomic.Bool
}

// Option configures a StateManager
type Option func(*StateManager)

// WithLogger sets the logger for state transitions and saves
func WithLogger(logger *zap.Logger) Option {
	return func(sm *StateManager) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithObserver sets the receiver of lifecycle events
func WithObserver(observer Observer) Option {
	return func(sm *StateManager) {
		if observer != nil {
			sm.observer = observer
		}
	}
}

// WithSensitiveDataLogging includes key values in logs and error messages
func WithSensitiveDataLogging(enabled bool) Option {
	return func(sm *StateManager) {
		sm.sensitive = enabled
	}
}

// WithAutoDetectChanges controls whether SaveChanges detects changes first
func WithAutoDetectChanges(enabled bool) Option {
	return func(sm *StateManager) {
		sm.autoDetect = enabled
	}
}

// NewStateManager creates a state manager for a finalized model
func NewStateManager(m *schema.Model, opts ...Option) (*StateManager, error) {
	if m == nil || !m.IsReadOnly() {
		return nil, newError(ErrModelNotFinalized,
			"The model must be finalized before entity instances can be tracked.")
	}
	sm := &StateManager{
		model:      m,
		logger:     zap.NewNop(),
		observer:   nopObserver{},
		autoDetect: true,
		byEntity:   make(map[interface{}]*InternalEntityEntry),
		identity:   make(map[*schema.EntityType]*identityMap),
	}
	for _, opt := range opts {
		opt(sm)
	}
	sm.detector = &ChangeDetector{manager: sm}
	sm.fixer = &NavigationFixer{manager: sm}
	return sm, nil
}

// Model returns the model the state manager tracks against
func (sm *StateManager) Model() *schema.Model { return sm.model }

// ChangeDetector returns the change detector of this unit of work
func (sm *StateManager) ChangeDetector() *ChangeDetector { return sm.detector }

// NavigationFixer returns the navigation fixer of this unit of work
func (sm *StateManager) NavigationFixer() *NavigationFixer { return sm.fixer }

// BeginOperation marks the start of an asynchronous operation. A second
// operation started before release is called fails with ErrConcurrentOperation.
func (sm *StateManager) BeginOperation() (release func(), err error) {
	if !sm.busy.CompareAndSwap(false, true) {
		return nil, newError(ErrConcurrentOperation,
			"A second operation was started on this unit of work before a previous operation completed. "+
				"This is usually caused by different goroutines concurrently using the same unit of work.")
	}
	return func() { sm.busy.Store(false) }, nil
}

// Entry returns the entry tracking entity, or nil
func (sm *StateManager) Entry(entity interface{}) *InternalEntityEntry {
	if !isTrackable(entity) {
		return nil
	}
	return sm.byEntity[entity]
}

// TryGetEntry looks an entry up by primary key values
func (sm *StateManager) TryGetEntry(et *schema.EntityType, key ...interface{}) (*InternalEntityEntry, bool) {
	pk := et.FindPrimaryKey()
	if pk == nil || len(key) != len(pk.Properties()) {
		return nil, false
	}
	e := sm.identityFor(et).find(key)
	if e == nil || !e.entityType.IsAssignableTo(et) {
		return nil, false
	}
	return e, true
}

// Entries returns the tracked entries in the order they started tracking
func (sm *StateManager) Entries() []*InternalEntityEntry {
	return append([]*InternalEntityEntry(nil), sm.entries...)
}

// HasChanges reports whether any entry has pending changes
func (sm *StateManager) HasChanges() bool {
	for _, e := range sm.entries {
		if e.state.HasPendingChanges() {
			return true
		}
	}
	return false
}

// Attach tracks entity and every instance reachable from it. Instances with a
// set key become Unchanged; instances whose generated key is unset become Added.
func (sm *StateManager) Attach(entity interface{}) (*InternalEntityEntry, error) {
	if e := sm.Entry(entity); e != nil {
		return e, nil
	}
	return sm.trackNew(entity, modeAttach)
}

// Add tracks entity and every untracked instance reachable from it as Added
func (sm *StateManager) Add(entity interface{}) (*InternalEntityEntry, error) {
	if e := sm.Entry(entity); e != nil {
		if e.state == Deleted {
			sm.setState(e, Unchanged)
			sm.detector.updateState(e)
		}
		return e, nil
	}
	return sm.trackNew(entity, modeAdd)
}

// Update tracks entity as Modified with every property marked modified
func (sm *StateManager) Update(entity interface{}) (*InternalEntityEntry, error) {
	if e := sm.Entry(entity); e != nil {
		if e.state == Unchanged || e.state == Deleted {
			sm.markAllModified(e)
		}
		return e, nil
	}
	return sm.trackNew(entity, modeUpdate)
}

// Remove marks entity Deleted, or stops tracking it when it was Added.
// Dependents are deleted or nulled according to their delete behavior.
func (sm *StateManager) Remove(entity interface{}) (*InternalEntityEntry, error) {
	e := sm.Entry(entity)
	if e == nil {
		et, err := sm.resolveType(entity)
		if err != nil {
			return nil, err
		}
		if e, err = sm.startTracking(et, entity, modeAttach); err != nil {
			return nil, err
		}
		if err := sm.fixer.initialFixup(e); err != nil {
			return e, err
		}
		e.snapshotNavigations()
	}
	if err := sm.deleteEntry(e); err != nil {
		return e, err
	}
	return e, nil
}

// Detach stops tracking entity
func (sm *StateManager) Detach(entity interface{}) error {
	e := sm.Entry(entity)
	if e == nil {
		return sm.detachedError(entity)
	}
	sm.detachEntry(e)
	return nil
}

// SetPropertyValue writes a property through the state manager so that the
// change detector and navigation fixer observe it immediately
func (sm *StateManager) SetPropertyValue(entity interface{}, name string, value interface{}) error {
	e := sm.Entry(entity)
	if e == nil {
		return sm.detachedError(entity)
	}
	p := e.entityType.FindProperty(name)
	if p == nil {
		return sm.unknownMember(e.entityType, name)
	}
	return sm.writeProperty(e, p, value, false)
}

// SetReference sets a reference navigation and fixes up foreign keys and inverses
func (sm *StateManager) SetReference(entity interface{}, name string, target interface{}) error {
	e := sm.Entry(entity)
	if e == nil {
		return sm.detachedError(entity)
	}
	nav := e.entityType.FindNavigation(name)
	if nav == nil {
		return sm.unknownMember(e.entityType, name)
	}
	if nav.IsCollection() {
		return newError(ErrInvalidNavigation,
			"The navigation '%s' is a collection and cannot be set to a single entity.", nav.DisplayName())
	}
	old := e.reference(nav)
	if old == target {
		return nil
	}
	if err := sm.fixer.checkReferenceChange(e, nav, old, target); err != nil {
		return err
	}
	e.setReference(nav, target)
	return sm.fixer.referenceChanged(e, nav, old, target, modeAdd)
}

// AddToCollection adds target to a collection navigation and fixes up its foreign key
func (sm *StateManager) AddToCollection(entity interface{}, name string, target interface{}) error {
	e, nav, err := sm.collectionNavigation(entity, name)
	if err != nil {
		return err
	}
	if containsItem(e.collection(nav), target) {
		return nil
	}
	e.addToCollection(nav, target)
	return sm.fixer.collectionChanged(e, nav, []interface{}{target}, nil, modeAdd)
}

// RemoveFromCollection removes target from a collection navigation and severs the relationship
func (sm *StateManager) RemoveFromCollection(entity interface{}, name string, target interface{}) error {
	e, nav, err := sm.collectionNavigation(entity, name)
	if err != nil {
		return err
	}
	if !containsItem(e.collection(nav), target) {
		return nil
	}
	if err := sm.fixer.checkRemoved(e, nav, []interface{}{target}); err != nil {
		return err
	}
	e.removeFromCollection(nav, target)
	return sm.fixer.collectionChanged(e, nav, nil, []interface{}{target}, modeAdd)
}

func (sm *StateManager) collectionNavigation(entity interface{}, name string) (*InternalEntityEntry, *schema.Navigation, error) {
	e := sm.Entry(entity)
	if e == nil {
		return nil, nil, sm.detachedError(entity)
	}
	nav := e.entityType.FindNavigation(name)
	if nav == nil {
		return nil, nil, sm.unknownMember(e.entityType, name)
	}
	if !nav.IsCollection() {
		return nil, nil, newError(ErrInvalidNavigation,
			"The navigation '%s' is a reference and cannot hold a collection of entities.", nav.DisplayName())
	}
	return e, nav, nil
}

// DetectChanges scans every tracked entry for changes made directly on the instances
func (sm *StateManager) DetectChanges() error {
	return sm.detector.DetectChanges()
}

// AcceptAllChanges makes the current values of every entry the original ones.
// Added and Modified entries become Unchanged; Deleted entries are detached.
func (sm *StateManager) AcceptAllChanges() {
	for _, e := range sm.Entries() {
		sm.acceptChanges(e)
	}
}

// Materialize resolves a stored row to a tracked entry. When an entry with the
// same key is already tracked it is returned unchanged.
func (sm *StateManager) Materialize(et *schema.EntityType, row storage.Row) (*InternalEntityEntry, error) {
	actual := et
	if name, ok := row[storage.TypeColumn].(string); ok {
		if t := sm.model.FindEntityType(name); t != nil && t.IsAssignableTo(et) {
			actual = t
		}
	}
	pk := actual.FindPrimaryKey()
	if actual.IsKeyless() || pk == nil {
		return nil, newError(ErrKeylessEntityType,
			"The entity type '%s' is keyless and cannot be tracked.", actual.DisplayName())
	}

	key := make([]interface{}, len(pk.Properties()))
	for i, p := range pk.Properties() {
		key[i] = row[p.Name()]
	}
	if existing := sm.identityFor(actual).find(key); existing != nil {
		return existing, nil
	}

	entity, err := sm.newInstance(actual)
	if err != nil {
		return nil, err
	}
	e := newEntry(sm, actual, entity)
	for _, p := range actual.GetProperties() {
		e.setCurrentValue(p, row[p.Name()])
	}
	if err := sm.register(e, Unchanged); err != nil {
		return nil, err
	}
	if err := sm.fixer.initialFixup(e); err != nil {
		return e, err
	}
	e.snapshotNavigations()
	return e, nil
}

func (sm *StateManager) newInstance(et *schema.EntityType) (interface{}, error) {
	if clr := et.ClrType(); clr != nil && clr.New != nil {
		return clr.New(), nil
	}
	for _, p := range et.GetProperties() {
		if p.Accessor() != nil {
			return nil, newError(ErrInvalidEntity,
				"An instance of entity type '%s' cannot be created because its CLR type has no constructor.", et.DisplayName())
		}
	}
	return &ShadowEntity{TypeName: et.Name()}, nil
}

func (sm *StateManager) trackNew(entity interface{}, mode trackingMode) (*InternalEntityEntry, error) {
	et, err := sm.resolveType(entity)
	if err != nil {
		return nil, err
	}
	return sm.track(et, entity, mode)
}

// track starts tracking entity, walks its navigations and connects it to
// already tracked instances
func (sm *StateManager) track(et *schema.EntityType, entity interface{}, mode trackingMode) (*InternalEntityEntry, error) {
	e, err := sm.startTracking(et, entity, mode)
	if err != nil {
		return nil, err
	}
	if err := sm.trackReachable(e, mode); err != nil {
		return e, err
	}
	if err := sm.fixer.initialFixup(e); err != nil {
		return e, err
	}
	e.snapshotNavigations()
	return e, nil
}

// ensureTracked returns the entry of entity, tracking it when necessary
func (sm *StateManager) ensureTracked(entity interface{}, mode trackingMode) (*InternalEntityEntry, error) {
	if e := sm.Entry(entity); e != nil {
		return e, nil
	}
	return sm.trackNew(entity, mode)
}

func (sm *StateManager) startTracking(et *schema.EntityType, entity interface{}, mode trackingMode) (*InternalEntityEntry, error) {
	e := newEntry(sm, et, entity)

	state := Added
	if mode != modeAdd && !sm.needsGeneratedKey(e) {
		state = Unchanged
		if mode == modeUpdate {
			state = Modified
		}
	}
	if state == Added {
		sm.generateValues(e)
	}
	if err := sm.register(e, state); err != nil {
		return nil, err
	}
	if state == Modified {
		sm.markAllModified(e)
	}
	return e, nil
}

// register adds a new entry to the identity map and the entry list
func (sm *StateManager) register(e *InternalEntityEntry, state EntityState) error {
	if conflict := sm.identityFor(e.entityType).add(e); conflict != nil {
		return sm.identityConflict(e.entityType, e.Key())
	}
	temporary := append([]bool(nil), e.temporary...)
	e.captureOriginal()
	// placeholders survive until the store replaces them
	copy(e.temporary, temporary)
	sm.entries = append(sm.entries, e)
	sm.byEntity[e.entity] = e
	sm.observer.EntityTracked(e)
	sm.setState(e, state)
	return nil
}

func (sm *StateManager) trackReachable(e *InternalEntityEntry, mode trackingMode) error {
	for _, nav := range e.entityType.GetNavigations() {
		if nav.IsCollection() {
			items := e.collection(nav)
			if len(items) == 0 {
				continue
			}
			if err := sm.fixer.collectionChanged(e, nav, items, nil, mode); err != nil {
				return err
			}
			continue
		}
		if target := e.reference(nav); target != nil {
			if err := sm.fixer.referenceChanged(e, nav, nil, target, mode); err != nil {
				return err
			}
		}
	}
	return nil
}

// needsGeneratedKey reports whether a key property that the store generates is unset
func (sm *StateManager) needsGeneratedKey(e *InternalEntityEntry) bool {
	pk := e.entityType.FindPrimaryKey()
	if pk == nil {
		return false
	}
	for _, p := range pk.Properties() {
		if p.ValueGenerated().OnAdd() && schema.IsDefaultValue(e.GetCurrentValue(p)) {
			return true
		}
	}
	return false
}

// generateValues assigns values to unset generated properties of an Added entry.
// UUID properties get final values; integer keys get unique negative placeholders.
func (sm *StateManager) generateValues(e *InternalEntityEntry) {
	for _, p := range e.entityType.GetProperties() {
		if !p.ValueGenerated().OnAdd() {
			continue
		}
		current := e.GetCurrentValue(p)
		if !schema.IsDefaultValue(current) {
			continue
		}
		switch {
		case p.Type() == schema.TypeUUID:
			if _, ok := current.(string); ok {
				e.setCurrentValue(p, uuid.NewString())
			} else {
				e.setCurrentValue(p, uuid.New())
			}
		case p.Type().IsInteger() && p.IsKey():
			sm.tempCounter++
			e.setCurrentValue(p, placeholder(-sm.tempCounter, current))
			e.temporary[p.Index()] = true
		}
	}
}

func (sm *StateManager) markAllModified(e *InternalEntityEntry) {
	for _, p := range e.entityType.GetProperties() {
		if p.IsPrimaryKey() {
			continue
		}
		e.modified[p.Index()] = true
	}
	sm.setState(e, Modified)
}

// writeProperty stores a new value and lets the change detector observe it.
// fixup is set when the navigation fixer writes a foreign key.
func (sm *StateManager) writeProperty(e *InternalEntityEntry, p *schema.Property, value interface{}, fixup bool) error {
	old := e.GetCurrentValue(p)
	if p.Comparer().Equals(old, value) {
		return nil
	}
	if p.IsKey() && e.state != Added {
		return newError(ErrKeyReadOnly,
			"The property '%s' is part of a key and so cannot be modified or marked as modified. "+
				"To change the principal of an existing entity with an identifying foreign key, first delete the dependent and save, "+
				"and then associate the dependent with the new principal.", p.DisplayName())
	}
	if p.IsPrimaryKey() {
		candidate := e.Key()
		for i, kp := range e.entityType.FindPrimaryKey().Properties() {
			if kp == p {
				candidate[i] = value
			}
		}
		if other := sm.identityFor(e.entityType).find(candidate); other != nil && other != e {
			return sm.identityConflict(e.entityType, candidate)
		}
	}
	e.setCurrentValue(p, value)
	return sm.detector.propertyChanged(e, p, old, value, fixup)
}

// rekey moves an entry in the identity map after its primary key changed
func (sm *StateManager) rekey(e *InternalEntityEntry) error {
	im := sm.identityFor(e.entityType)
	im.remove(e)
	if conflict := im.add(e); conflict != nil {
		return sm.identityConflict(e.entityType, e.Key())
	}
	return nil
}

func (sm *StateManager) deleteEntry(e *InternalEntityEntry) error {
	if e.state == Deleted || e.state == Detached {
		return nil
	}
	if err := sm.fixer.checkDelete(e, nil); err != nil {
		return err
	}
	wasAdded := e.state == Added
	sm.setState(e, Deleted)
	if err := sm.fixer.cascadeDelete(e); err != nil {
		return err
	}
	if wasAdded {
		sm.detachEntry(e)
	}
	return nil
}

func (sm *StateManager) detachEntry(e *InternalEntityEntry) {
	sm.identityFor(e.entityType).remove(e)
	delete(sm.byEntity, e.entity)
	for i, existing := range sm.entries {
		if existing == e {
			sm.entries = append(sm.entries[:i], sm.entries[i+1:]...)
			break
		}
	}
	for _, other := range sm.entries {
		for fk, principal := range other.principals {
			if principal == e {
				delete(other.principals, fk)
			}
		}
	}
	e.principals = make(map[*schema.ForeignKey]*InternalEntityEntry)
	sm.setState(e, Detached)
}

func (sm *StateManager) acceptChanges(e *InternalEntityEntry) {
	switch e.state {
	case Added, Modified:
		e.captureOriginal()
		sm.setState(e, Unchanged)
	case Deleted:
		sm.detachEntry(e)
	}
}

func (sm *StateManager) setState(e *InternalEntityEntry, state EntityState) {
	old := e.state
	if old == state {
		return
	}
	e.state = state
	fields := []zap.Field{
		zap.String("entity_type", e.entityType.Name()),
		zap.Stringer("from", old),
		zap.Stringer("to", state),
	}
	if sm.sensitive {
		fields = append(fields, zap.Any("key", e.Key()))
	}
	sm.logger.Debug("entity state changed", fields...)
	sm.observer.StateChanged(e, old, state)
}

func (sm *StateManager) identityFor(et *schema.EntityType) *identityMap {
	root := et.RootType()
	im := sm.identity[root]
	if im == nil {
		im = newIdentityMap(root.FindPrimaryKey())
		sm.identity[root] = im
	}
	return im
}

func (sm *StateManager) resolveType(entity interface{}) (*schema.EntityType, error) {
	if entity == nil {
		return nil, newError(ErrInvalidEntity, "A nil entity cannot be tracked.")
	}
	if !isTrackable(entity) {
		return nil, newError(ErrInvalidEntity,
			"The entity of Go type '%T' cannot be tracked because it is not a pointer.", entity)
	}
	typed, ok := entity.(Typed)
	if !ok {
		return nil, newError(ErrInvalidEntity,
			"The entity of Go type '%T' cannot be tracked because it does not report its entity type.", entity)
	}
	et := sm.model.FindEntityType(typed.EntityTypeName())
	if et == nil {
		return nil, newError(ErrUnknownEntityType,
			"The entity type '%s' was not found. Ensure that the entity type has been added to the model.", typed.EntityTypeName())
	}
	if et.IsKeyless() || et.FindPrimaryKey() == nil {
		return nil, newError(ErrKeylessEntityType,
			"The entity type '%s' is keyless and cannot be tracked.", et.DisplayName())
	}
	return et, nil
}

func (sm *StateManager) detachedError(entity interface{}) error {
	name := fmt.Sprintf("%T", entity)
	if typed, ok := entity.(Typed); ok {
		name = typed.EntityTypeName()
	}
	return newError(ErrDetachedEntity,
		"The instance of entity type '%s' is not being tracked. Attach or add it before changing its values.", name)
}

func (sm *StateManager) unknownMember(et *schema.EntityType, name string) error {
	return newError(ErrUnknownMember,
		"The property or navigation '%s' was not found on entity type '%s'.", name, et.DisplayName())
}

func (sm *StateManager) identityConflict(et *schema.EntityType, key []interface{}) error {
	if sm.sensitive {
		return newError(ErrIdentityConflict,
			"The instance of entity type '%s' cannot be tracked because another instance with the key value '%s' is already being tracked. "+
				"When attaching existing entities, ensure that only one entity instance with a given key value is attached.",
			et.DisplayName(), sm.describeKey(et, key))
	}
	return newError(ErrIdentityConflict,
		"The instance of entity type '%s' cannot be tracked because another instance with the same key value for %s is already being tracked. "+
			"When attaching existing entities, ensure that only one entity instance with a given key value is attached.",
		et.DisplayName(), schema.FormatProperties(et.FindPrimaryKey().Properties()))
}

// describeKey renders key values when sensitive data logging is on, and the key properties otherwise
func (sm *StateManager) describeKey(et *schema.EntityType, key []interface{}) string {
	props := et.FindPrimaryKey().Properties()
	if !sm.sensitive {
		return schema.FormatProperties(props)
	}
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = fmt.Sprintf("%s: %v", p.Name(), key[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func isTrackable(entity interface{}) bool {
	if entity == nil {
		return false
	}
	return reflect.TypeOf(entity).Kind() == reflect.Pointer
}

// placeholder converts n to the integer type of like
func placeholder(n int64, like interface{}) interface{} {
	switch like.(type) {
	case int:
		return int(n)
	case int32:
		return int32(n)
	case int16:
		return int16(n)
	default:
		return n
	}
}

