package tracking

import (
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// ChangeDetector finds property and navigation changes made directly on
// tracked instances and flips entry states accordingly
type ChangeDetector struct {
	manager *StateManager
}

// DetectChanges scans every tracked entry
func (d *ChangeDetector) DetectChanges() error {
	for _, e := range d.manager.Entries() {
		if err := d.DetectEntryChanges(e); err != nil {
			return err
		}
	}
	return nil
}

// DetectEntryChanges compares the accessor-backed values and navigations of
// one entry with the values last observed for it
func (d *ChangeDetector) DetectEntryChanges(e *InternalEntityEntry) error {
	if e.state == Detached || e.state == Deleted {
		return nil
	}
	for _, p := range e.entityType.GetProperties() {
		if p.Accessor() == nil {
			continue
		}
		current := e.GetCurrentValue(p)
		last := e.lastSeen[p.Index()]
		if p.Comparer().Equals(last, current) {
			continue
		}
		if p.IsKey() && e.state != Added {
			return newError(ErrKeyReadOnly,
				"The property '%s' is part of a key and so cannot be modified or marked as modified.", p.DisplayName())
		}
		if err := d.propertyChanged(e, p, last, current, false); err != nil {
			return err
		}
	}
	return d.detectNavigationChanges(e)
}

func (d *ChangeDetector) detectNavigationChanges(e *InternalEntityEntry) error {
	fixer := d.manager.fixer
	for _, nav := range e.entityType.GetNavigations() {
		i := nav.Index()
		if !nav.IsCollection() {
			current := e.reference(nav)
			old := e.navSnapshot[i]
			if current == old {
				continue
			}
			if err := fixer.checkReferenceChange(e, nav, old, current); err != nil {
				return err
			}
			e.navSnapshot[i] = current
			if err := fixer.referenceChanged(e, nav, old, current, modeAdd); err != nil {
				return err
			}
			continue
		}

		current := e.collection(nav)
		old, _ := e.navSnapshot[i].([]interface{})
		var added, removed []interface{}
		for _, item := range current {
			if !containsItem(old, item) {
				added = append(added, item)
			}
		}
		for _, item := range old {
			if !containsItem(current, item) {
				removed = append(removed, item)
			}
		}
		if len(added) == 0 && len(removed) == 0 {
			continue
		}
		if err := fixer.checkRemoved(e, nav, removed); err != nil {
			return err
		}
		e.navSnapshot[i] = current
		if err := fixer.collectionChanged(e, nav, added, removed, modeAdd); err != nil {
			return err
		}
	}
	return nil
}

// propertyChanged records a new value of p and propagates it to the identity
// map and the navigation fixer. fixup is set when the fixer wrote the value.
func (d *ChangeDetector) propertyChanged(e *InternalEntityEntry, p *schema.Property, old, value interface{}, fixup bool) error {
	i := p.Index()
	e.lastSeen[i] = p.Comparer().Snapshot(value)
	e.temporary[i] = false

	switch e.state {
	case Unchanged, Modified:
		e.modified[i] = !p.Comparer().Equals(e.original[i], value)
		d.updateState(e)
	}

	if p.IsPrimaryKey() {
		if err := d.manager.rekey(e); err != nil {
			return err
		}
	}
	if p.IsKey() {
		if err := d.manager.fixer.principalKeyChanged(e, p); err != nil {
			return err
		}
	}
	if p.IsForeignKey() && !fixup {
		return d.manager.fixer.foreignKeyChanged(e, p)
	}
	return nil
}

// updateState moves an entry between Unchanged and Modified to match its flags
func (d *ChangeDetector) updateState(e *InternalEntityEntry) {
	switch {
	case e.state == Unchanged && e.hasModifiedProperties():
		d.manager.setState(e, Modified)
	case e.state == Modified && !e.hasModifiedProperties():
		d.manager.setState(e, Unchanged)
	}
}
