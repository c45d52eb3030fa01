package schema

import (
	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// Finalize validates the model and freezes it. validate runs at most once;
// concurrent and later callers observe the same result. A nil validate skips
// validation.
func (m *Model) Finalize(validate func(*Model) error) error {
	m.finalizeMu.Lock()
	defer m.finalizeMu.Unlock()

	if m.finalized {
		return m.finalizeErr
	}
	m.finalized = true

	if validate != nil {
		if err := validate(m); err != nil {
			m.finalizeErr = err
			return err
		}
	}

	if m.ProductVersion() == "" {
		if _, err := m.SetOrOverrideAnnotation(AnnotationProductVersion, ProductVersion, annotations.Explicit); err != nil {
			m.finalizeErr = err
			return err
		}
	}

	for _, et := range m.GetEntityTypes() {
		et.computeIndexes()
	}
	m.makeReadOnly()
	return nil
}

// IsFinalized reports whether Finalize has been called, successfully or not
func (m *Model) IsFinalized() bool {
	m.finalizeMu.Lock()
	defer m.finalizeMu.Unlock()
	return m.finalized
}

func (et *EntityType) computeIndexes() {
	for i, p := range et.GetProperties() {
		if p.declaringType == et {
			p.index = i
		}
	}
	for i, n := range et.GetNavigations() {
		if n.declaringType == et {
			n.index = i
		}
	}
	et.propertyCount = len(et.GetProperties())
	et.navigationCount = len(et.GetNavigations())
}

func (m *Model) makeReadOnly() {
	m.MakeReadOnly()
	for _, et := range m.GetEntityTypes() {
		et.MakeReadOnly()
		for _, p := range et.properties {
			p.MakeReadOnly()
		}
		for _, k := range et.keys {
			k.MakeReadOnly()
		}
		for _, fk := range et.foreignKeys {
			fk.MakeReadOnly()
		}
		for _, n := range et.navigations {
			n.MakeReadOnly()
		}
		for _, s := range et.skipNavigations {
			s.MakeReadOnly()
		}
		for _, idx := range et.indexes {
			idx.MakeReadOnly()
		}
	}
	m.readOnly.Store(true)
}
