package annotations

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicateAnnotation is returned when an annotation name is already in use
	ErrDuplicateAnnotation = errors.New("duplicate annotation")

	// ErrReadOnly is returned when persisted annotations are changed after finalization
	ErrReadOnly = errors.New("metadata is read-only")

	// ErrNotReadOnly is returned when runtime annotations are written before finalization
	ErrNotReadOnly = errors.New("runtime annotations require a finalized model")
)

// Annotation is a named metadata value together with the source that set it
type Annotation struct {
	Name   string
	Value  interface{}
	Source ConfigurationSource
}

// String returns a debug representation of the annotation
func (a *Annotation) String() string {
	return fmt.Sprintf("%s: %v", a.Name, a.Value)
}

// annotationError renders a full message while still matching its sentinel
type annotationError struct {
	kind error
	msg  string
}

func (e *annotationError) Error() string { return e.msg }
func (e *annotationError) Unwrap() error { return e.kind }

// Annotatable is embedded by every metadata object. Persisted annotations are
// mutable until MakeReadOnly is called; runtime annotations only after that.
type Annotatable struct {
	annotations map[string]*Annotation
	readOnly    bool

	runtimeMu sync.RWMutex
	runtime   map[string]*Annotation
}

// AddAnnotation adds a new annotation and fails if the name is already used
func (a *Annotatable) AddAnnotation(name string, value interface{}, source ConfigurationSource) (*Annotation, error) {
	if err := a.ensureMutable(name); err != nil {
		return nil, err
	}
	if _, exists := a.annotations[name]; exists {
		return nil, &annotationError{
			kind: ErrDuplicateAnnotation,
			msg:  fmt.Sprintf("The annotation '%s' cannot be added because an annotation with the same name already exists.", name),
		}
	}
	if a.annotations == nil {
		a.annotations = make(map[string]*Annotation)
	}
	annotation := &Annotation{Name: name, Value: value, Source: source}
	a.annotations[name] = annotation
	return annotation, nil
}

// FindAnnotation returns the annotation with the given name, or nil
func (a *Annotatable) FindAnnotation(name string) *Annotation {
	return a.annotations[name]
}

// AnnotationValue returns the value of the named annotation, or nil
func (a *Annotatable) AnnotationValue(name string) interface{} {
	if annotation := a.annotations[name]; annotation != nil {
		return annotation.Value
	}
	return nil
}

// SetOrOverrideAnnotation writes an annotation if the source ranks at least as
// high as the stored one. It returns nil when the write was refused.
func (a *Annotatable) SetOrOverrideAnnotation(name string, value interface{}, source ConfigurationSource) (*Annotation, error) {
	if err := a.ensureMutable(name); err != nil {
		return nil, err
	}
	existing, exists := a.annotations[name]
	if !exists {
		return a.AddAnnotation(name, value, source)
	}
	if !source.Overrides(existing.Source) {
		return nil, nil
	}
	existing.Value = value
	existing.Source = Max(existing.Source, source)
	return existing, nil
}

// RemoveAnnotation removes and returns the named annotation. A caller asserting
// a lower source than the stored one cannot remove it and gets nil back.
func (a *Annotatable) RemoveAnnotation(name string, source ConfigurationSource) (*Annotation, error) {
	if err := a.ensureMutable(name); err != nil {
		return nil, err
	}
	existing, exists := a.annotations[name]
	if !exists {
		return nil, nil
	}
	if !source.Overrides(existing.Source) {
		return nil, nil
	}
	delete(a.annotations, name)
	return existing, nil
}

// GetAnnotations returns all persisted annotations ordered by name
func (a *Annotatable) GetAnnotations() []*Annotation {
	return sortedAnnotations(a.annotations)
}

// MakeReadOnly freezes the persisted annotations and opens the runtime namespace
func (a *Annotatable) MakeReadOnly() {
	a.readOnly = true
}

// IsReadOnly reports whether MakeReadOnly has been called
func (a *Annotatable) IsReadOnly() bool {
	return a.readOnly
}

func (a *Annotatable) ensureMutable(name string) error {
	if a.readOnly {
		return &annotationError{
			kind: ErrReadOnly,
			msg:  fmt.Sprintf("The annotation '%s' cannot be changed because the model is read-only.", name),
		}
	}
	return nil
}

// AddRuntimeAnnotation adds a runtime annotation; the owner must be read-only
func (a *Annotatable) AddRuntimeAnnotation(name string, value interface{}) (*Annotation, error) {
	if !a.readOnly {
		return nil, &annotationError{
			kind: ErrNotReadOnly,
			msg:  fmt.Sprintf("The runtime annotation '%s' cannot be added before the model is finalized.", name),
		}
	}

	a.runtimeMu.Lock()
	defer a.runtimeMu.Unlock()

	if _, exists := a.runtime[name]; exists {
		return nil, &annotationError{
			kind: ErrDuplicateAnnotation,
			msg:  fmt.Sprintf("The runtime annotation '%s' cannot be added because a runtime annotation with the same name already exists.", name),
		}
	}
	if a.runtime == nil {
		a.runtime = make(map[string]*Annotation)
	}
	annotation := &Annotation{Name: name, Value: value, Source: Explicit}
	a.runtime[name] = annotation
	return annotation, nil
}

// GetOrAddRuntimeAnnotation returns the existing runtime value or stores the
// one produced by factory. Concurrent callers all observe the first stored value.
func (a *Annotatable) GetOrAddRuntimeAnnotation(name string, factory func() interface{}) (interface{}, error) {
	if existing := a.FindRuntimeAnnotation(name); existing != nil {
		return existing.Value, nil
	}
	if !a.readOnly {
		return nil, &annotationError{
			kind: ErrNotReadOnly,
			msg:  fmt.Sprintf("The runtime annotation '%s' cannot be added before the model is finalized.", name),
		}
	}

	a.runtimeMu.Lock()
	defer a.runtimeMu.Unlock()

	if existing, exists := a.runtime[name]; exists {
		return existing.Value, nil
	}
	if a.runtime == nil {
		a.runtime = make(map[string]*Annotation)
	}
	value := factory()
	a.runtime[name] = &Annotation{Name: name, Value: value, Source: Explicit}
	return value, nil
}

// FindRuntimeAnnotation returns the named runtime annotation, or nil
func (a *Annotatable) FindRuntimeAnnotation(name string) *Annotation {
	a.runtimeMu.RLock()
	defer a.runtimeMu.RUnlock()
	return a.runtime[name]
}

// RemoveRuntimeAnnotation removes and returns the named runtime annotation
func (a *Annotatable) RemoveRuntimeAnnotation(name string) *Annotation {
	a.runtimeMu.Lock()
	defer a.runtimeMu.Unlock()

	existing, exists := a.runtime[name]
	if !exists {
		return nil
	}
	delete(a.runtime, name)
	return existing
}

// GetRuntimeAnnotations returns all runtime annotations ordered by name
func (a *Annotatable) GetRuntimeAnnotations() []*Annotation {
	a.runtimeMu.RLock()
	defer a.runtimeMu.RUnlock()
	return sortedAnnotations(a.runtime)
}

func sortedAnnotations(m map[string]*Annotation) []*Annotation {
	result := make([]*Annotation, 0, len(m))
	for _, annotation := range m {
		result = append(result, annotation)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
