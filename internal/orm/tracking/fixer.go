package tracking

import (
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// NavigationFixer keeps foreign key values, reference navigations and
// collection navigations of tracked entries consistent with each other
type NavigationFixer struct {
	manager *StateManager
}

// initialFixup connects a newly tracked entry to the tracked instances its
// foreign key values point at, and to tracked dependents pointing at it
func (f *NavigationFixer) initialFixup(e *InternalEntityEntry) error {
	for _, fk := range e.entityType.GetForeignKeys() {
		if e.principals[fk] != nil {
			continue
		}
		values := e.keyValues(fk.Properties())
		if principal := f.findPrincipal(fk, values); principal != nil {
			if err := f.connect(e, fk, principal); err != nil {
				return err
			}
		}
	}

	for _, fk := range e.entityType.GetReferencingForeignKeys() {
		key := e.keyValues(fk.PrincipalKey().Properties())
		if hasNil(key) {
			continue
		}
		for _, d := range f.manager.entries {
			if d.state == Detached || d.principals[fk] != nil {
				continue
			}
			if !d.entityType.IsAssignableTo(fk.DeclaringEntityType()) {
				continue
			}
			if !keysEqual(fk.Properties(), d.keyValues(fk.Properties()), key) {
				continue
			}
			if err := f.connect(d, fk, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// foreignKeyChanged reconnects a dependent after one of its foreign key
// properties was written directly
func (f *NavigationFixer) foreignKeyChanged(d *InternalEntityEntry, p *schema.Property) error {
	for _, fk := range p.ContainingForeignKeys() {
		if !d.entityType.IsAssignableTo(fk.DeclaringEntityType()) {
			continue
		}
		principal := f.findPrincipal(fk, d.keyValues(fk.Properties()))
		if principal == nil {
			f.disconnect(d, fk)
			continue
		}
		if err := f.connect(d, fk, principal); err != nil {
			return err
		}
	}
	return nil
}

// referenceChanged fixes up after a reference navigation of e changed from old to target
func (f *NavigationFixer) referenceChanged(e *InternalEntityEntry, nav *schema.Navigation, old, target interface{}, mode trackingMode) error {
	if err := f.checkReferenceChange(e, nav, old, target); err != nil {
		return err
	}
	fk := nav.ForeignKey()
	if nav.IsOnDependent() {
		if target == nil {
			if e.principals[fk] == nil {
				return nil
			}
			return f.sever(e, fk)
		}
		principal, err := f.manager.ensureTracked(target, mode)
		if err != nil {
			return err
		}
		return f.relate(e, fk, principal)
	}

	if old != nil {
		if previous := f.manager.Entry(old); previous != nil && previous.principals[fk] == e {
			if err := f.sever(previous, fk); err != nil {
				return err
			}
		}
	}
	if target == nil {
		return nil
	}
	dependent, err := f.manager.ensureTracked(target, mode)
	if err != nil {
		return err
	}
	return f.relate(dependent, fk, e)
}

// collectionChanged fixes up after items were added to or removed from a
// collection navigation of the principal e
func (f *NavigationFixer) collectionChanged(e *InternalEntityEntry, nav *schema.Navigation, added, removed []interface{}, mode trackingMode) error {
	if err := f.checkRemoved(e, nav, removed); err != nil {
		return err
	}
	fk := nav.ForeignKey()
	for _, item := range removed {
		d := f.manager.Entry(item)
		if d == nil || d.principals[fk] != e {
			continue
		}
		if err := f.sever(d, fk); err != nil {
			return err
		}
	}
	for _, item := range added {
		d, err := f.manager.ensureTracked(item, mode)
		if err != nil {
			return err
		}
		if err := f.relate(d, fk, e); err != nil {
			return err
		}
	}
	return nil
}

// principalKeyChanged copies a changed principal key value to every dependent
func (f *NavigationFixer) principalKeyChanged(principal *InternalEntityEntry, p *schema.Property) error {
	for _, fk := range principal.entityType.GetReferencingForeignKeys() {
		if !fk.PrincipalKey().Contains(p) {
			continue
		}
		for _, d := range f.dependents(principal, fk) {
			if err := f.setForeignKey(d, fk, principal); err != nil {
				return err
			}
		}
	}
	return nil
}

// cascadeDelete applies the delete behavior of every relationship in which
// the deleted entry is the principal
func (f *NavigationFixer) cascadeDelete(principal *InternalEntityEntry) error {
	for _, fk := range principal.entityType.GetReferencingForeignKeys() {
		for _, d := range f.dependents(principal, fk) {
			if d.state == Deleted || d.state == Detached {
				continue
			}
			if fk.IsRequired() && cascades(fk) {
				if err := f.manager.deleteEntry(d); err != nil {
					return err
				}
				continue
			}
			if err := f.sever(d, fk); err != nil {
				return err
			}
		}
	}
	return nil
}

// relate makes principal the principal of d, writing d's foreign key
func (f *NavigationFixer) relate(d *InternalEntityEntry, fk *schema.ForeignKey, principal *InternalEntityEntry) error {
	if err := f.setForeignKey(d, fk, principal); err != nil {
		return err
	}
	return f.connect(d, fk, principal)
}

// connect records the relationship and sets both navigations without
// touching foreign key values
func (f *NavigationFixer) connect(d *InternalEntityEntry, fk *schema.ForeignKey, principal *InternalEntityEntry) error {
	if replaced := f.replacedDependent(d, fk, principal); replaced != nil {
		if err := f.checkSever(replaced, fk, nil); err != nil {
			return err
		}
	}
	if previous := d.principals[fk]; previous != nil && previous != principal {
		f.disconnect(d, fk)
	}
	d.principals[fk] = principal

	if nav := fk.DependentToPrincipal(); nav != nil && d.entityType.IsAssignableTo(nav.DeclaringEntityType()) {
		if d.reference(nav) != principal.entity {
			d.setReference(nav, principal.entity)
		}
	}
	nav := fk.PrincipalToDependent()
	if nav == nil || !principal.entityType.IsAssignableTo(nav.DeclaringEntityType()) {
		return nil
	}
	if nav.IsCollection() {
		principal.addToCollection(nav, d.entity)
		return nil
	}
	current := principal.reference(nav)
	if current == d.entity {
		return nil
	}
	principal.setReference(nav, d.entity)
	if current == nil {
		return nil
	}
	if replaced := f.manager.Entry(current); replaced != nil && replaced.principals[fk] == principal {
		// a unique relationship holds one dependent
		return f.sever(replaced, fk)
	}
	return nil
}

// disconnect forgets the principal of d and clears both navigations
func (f *NavigationFixer) disconnect(d *InternalEntityEntry, fk *schema.ForeignKey) {
	principal := d.principals[fk]
	if principal == nil {
		return
	}
	delete(d.principals, fk)

	if nav := fk.DependentToPrincipal(); nav != nil && d.entityType.IsAssignableTo(nav.DeclaringEntityType()) {
		if d.reference(nav) == principal.entity {
			d.setReference(nav, nil)
		}
	}
	nav := fk.PrincipalToDependent()
	if nav == nil || !principal.entityType.IsAssignableTo(nav.DeclaringEntityType()) {
		return
	}
	if nav.IsCollection() {
		principal.removeFromCollection(nav, d.entity)
	} else if principal.reference(nav) == d.entity {
		principal.setReference(nav, nil)
	}
}

// sever removes d from its principal. Orphans of a required relationship
// are deleted when the relationship cascades; optional foreign keys are nulled.
// Nothing is changed when the severance would fail.
func (f *NavigationFixer) sever(d *InternalEntityEntry, fk *schema.ForeignKey) error {
	if err := f.checkSever(d, fk, nil); err != nil {
		return err
	}
	f.disconnect(d, fk)
	if d.state == Deleted || d.state == Detached {
		return nil
	}

	if fk.IsRequired() {
		return f.manager.deleteEntry(d)
	}

	for _, p := range fk.Properties() {
		if !p.IsNullable() {
			continue
		}
		if err := f.manager.writeProperty(d, p, nil, true); err != nil {
			return err
		}
	}
	return nil
}

// checkSever reports the error severing d from its principal through fk
// would fail with, without changing any entry
func (f *NavigationFixer) checkSever(d *InternalEntityEntry, fk *schema.ForeignKey, seen map[*InternalEntityEntry]bool) error {
	if d.state == Deleted || d.state == Detached || !fk.IsRequired() {
		return nil
	}
	if cascades(fk) {
		return f.checkDelete(d, seen)
	}
	principalName := fk.PrincipalEntityType().DisplayName()
	if principal := d.principals[fk]; principal != nil {
		principalName = principal.entityType.DisplayName()
	}
	return newError(ErrRelationshipSevered,
		"The association between entity types '%s' and '%s' has been severed, but the relationship is marked as required. "+
			"Delete the dependent instead, or configure the relationship to cascade.",
		principalName, d.entityType.DisplayName())
}

// checkDelete reports the error deleting principal would fail with by
// walking the dependents its delete would reach
func (f *NavigationFixer) checkDelete(principal *InternalEntityEntry, seen map[*InternalEntityEntry]bool) error {
	if seen == nil {
		seen = make(map[*InternalEntityEntry]bool)
	}
	if seen[principal] {
		return nil
	}
	seen[principal] = true
	for _, fk := range principal.entityType.GetReferencingForeignKeys() {
		for _, d := range f.dependents(principal, fk) {
			if err := f.checkSever(d, fk, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkReferenceChange reports the error changing the reference navigation
// nav of e from old to target would fail with
func (f *NavigationFixer) checkReferenceChange(e *InternalEntityEntry, nav *schema.Navigation, old, target interface{}) error {
	fk := nav.ForeignKey()
	if nav.IsOnDependent() {
		if target == nil {
			if e.principals[fk] == nil {
				return nil
			}
			return f.checkSever(e, fk, nil)
		}
		principal := f.manager.Entry(target)
		if principal == nil {
			return nil
		}
		if replaced := f.replacedDependent(e, fk, principal); replaced != nil {
			return f.checkSever(replaced, fk, nil)
		}
		return nil
	}
	if old == nil {
		return nil
	}
	if previous := f.manager.Entry(old); previous != nil && previous.principals[fk] == e {
		return f.checkSever(previous, fk, nil)
	}
	return nil
}

// checkRemoved reports the error removing items from the collection
// navigation nav of e would fail with
func (f *NavigationFixer) checkRemoved(e *InternalEntityEntry, nav *schema.Navigation, removed []interface{}) error {
	fk := nav.ForeignKey()
	for _, item := range removed {
		d := f.manager.Entry(item)
		if d == nil || d.principals[fk] != e {
			continue
		}
		if err := f.checkSever(d, fk, nil); err != nil {
			return err
		}
	}
	return nil
}

// replacedDependent returns the dependent that connecting d to principal
// would push out of a unique relationship
func (f *NavigationFixer) replacedDependent(d *InternalEntityEntry, fk *schema.ForeignKey, principal *InternalEntityEntry) *InternalEntityEntry {
	nav := fk.PrincipalToDependent()
	if nav == nil || nav.IsCollection() || !principal.entityType.IsAssignableTo(nav.DeclaringEntityType()) {
		return nil
	}
	current := principal.reference(nav)
	if current == nil || current == d.entity {
		return nil
	}
	if replaced := f.manager.Entry(current); replaced != nil && replaced != d && replaced.principals[fk] == principal {
		return replaced
	}
	return nil
}

func cascades(fk *schema.ForeignKey) bool {
	return fk.DeleteBehavior() == schema.DeleteCascade || fk.IsOwnership()
}

// setForeignKey copies the principal key values of principal into the
// foreign key of d, carrying placeholder flags along
func (f *NavigationFixer) setForeignKey(d *InternalEntityEntry, fk *schema.ForeignKey, principal *InternalEntityEntry) error {
	principalProps := fk.PrincipalKey().Properties()
	for i, p := range fk.Properties() {
		source := principalProps[i]
		if err := f.manager.writeProperty(d, p, principal.GetCurrentValue(source), true); err != nil {
			return err
		}
		d.temporary[p.Index()] = principal.temporary[source.Index()]
	}
	return nil
}

// findPrincipal returns the tracked principal whose key matches values
func (f *NavigationFixer) findPrincipal(fk *schema.ForeignKey, values []interface{}) *InternalEntityEntry {
	if hasNil(values) {
		return nil
	}
	target := fk.PrincipalEntityType()
	if fk.PrincipalKey().IsPrimaryKey() {
		e := f.manager.identityFor(target).find(values)
		if e != nil && e.entityType.IsAssignableTo(target) {
			return e
		}
		return nil
	}
	props := fk.PrincipalKey().Properties()
	for _, e := range f.manager.entries {
		if e.state == Detached || !e.entityType.IsAssignableTo(target) {
			continue
		}
		if keysEqual(props, e.keyValues(props), values) {
			return e
		}
	}
	return nil
}

// dependents returns the tracked entries whose principal through fk is principal
func (f *NavigationFixer) dependents(principal *InternalEntityEntry, fk *schema.ForeignKey) []*InternalEntityEntry {
	var result []*InternalEntityEntry
	for _, d := range f.manager.entries {
		if d.principals[fk] == principal {
			result = append(result, d)
		}
	}
	return result
}

func hasNil(values []interface{}) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}

func keysEqual(props []*schema.Property, a, b []interface{}) bool {
	for i, p := range props {
		if !p.Comparer().Equals(a[i], b[i]) {
			return false
		}
	}
	return true
}
