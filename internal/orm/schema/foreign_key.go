package schema

import (
	"github.com/conduit-lang/entitycore/internal/orm/annotations"
)

// ForeignKey relates dependent properties on one entity type to a key on a principal type
type ForeignKey struct {
	annotations.Annotatable

	properties          []*Property
	principalKey        *Key
	principalEntityType *EntityType
	declaringEntityType *EntityType

	unique         bool
	required       bool
	ownership      bool
	deleteBehavior DeleteBehavior

	dependentToPrincipal *Navigation
	principalToDependent *Navigation

	source ConfigurationSource
}

// Properties returns the dependent properties in declaration order
func (fk *ForeignKey) Properties() []*Property {
	return append([]*Property(nil), fk.properties...)
}

// PrincipalKey returns the key the foreign key targets
func (fk *ForeignKey) PrincipalKey() *Key { return fk.principalKey }

// PrincipalEntityType returns the principal side entity type
func (fk *ForeignKey) PrincipalEntityType() *EntityType { return fk.principalEntityType }

// DeclaringEntityType returns the dependent side entity type
func (fk *ForeignKey) DeclaringEntityType() *EntityType { return fk.declaringEntityType }

// IsUnique reports whether at most one dependent may reference a principal
func (fk *ForeignKey) IsUnique() bool { return fk.unique }

// IsRequired reports whether a dependent must always reference a principal
func (fk *ForeignKey) IsRequired() bool { return fk.required }

// IsOwnership reports whether the relationship defines an owned type
func (fk *ForeignKey) IsOwnership() bool { return fk.ownership }

// DeleteBehavior returns what happens to dependents when the principal is deleted
func (fk *ForeignKey) DeleteBehavior() DeleteBehavior { return fk.deleteBehavior }

// DependentToPrincipal returns the reference navigation on the dependent, or nil
func (fk *ForeignKey) DependentToPrincipal() *Navigation { return fk.dependentToPrincipal }

// PrincipalToDependent returns the navigation on the principal, or nil
func (fk *ForeignKey) PrincipalToDependent() *Navigation { return fk.principalToDependent }

// ConfigurationSource returns who configured the foreign key
func (fk *ForeignKey) ConfigurationSource() ConfigurationSource { return fk.source }

// IsSelfReferencing reports whether both ends are in the same entity type
func (fk *ForeignKey) IsSelfReferencing() bool {
	return fk.declaringEntityType == fk.principalEntityType
}

// Contains reports whether the property is one of the dependent properties
func (fk *ForeignKey) Contains(p *Property) bool {
	for _, fp := range fk.properties {
		if fp == p {
			return true
		}
	}
	return false
}

// GetNavigation returns the navigation pointing at the principal or at the dependent
func (fk *ForeignKey) GetNavigation(pointsToPrincipal bool) *Navigation {
	if pointsToPrincipal {
		return fk.dependentToPrincipal
	}
	return fk.principalToDependent
}

// SetUnique changes uniqueness; collection navigations on the principal are re-shaped
func (fk *ForeignKey) SetUnique(unique bool) error {
	if err := fk.declaringEntityType.model.ensureMutable(); err != nil {
		return err
	}
	fk.unique = unique
	if fk.principalToDependent != nil {
		fk.principalToDependent.collection = !unique
	}
	return nil
}

// SetRequired marks the relationship as required or optional
func (fk *ForeignKey) SetRequired(required bool) error {
	if err := fk.declaringEntityType.model.ensureMutable(); err != nil {
		return err
	}
	fk.required = required
	return nil
}

// SetOwnership marks the relationship as defining an owned type
func (fk *ForeignKey) SetOwnership(ownership bool) error {
	if err := fk.declaringEntityType.model.ensureMutable(); err != nil {
		return err
	}
	fk.ownership = ownership
	return nil
}

// SetDeleteBehavior changes the delete behavior
func (fk *ForeignKey) SetDeleteBehavior(behavior DeleteBehavior) error {
	if err := fk.declaringEntityType.model.ensureMutable(); err != nil {
		return err
	}
	fk.deleteBehavior = behavior
	return nil
}

// SetDependentToPrincipal adds a reference navigation on the dependent type
func (fk *ForeignKey) SetDependentToPrincipal(name string) (*Navigation, error) {
	if err := fk.declaringEntityType.model.ensureMutable(); err != nil {
		return nil, err
	}
	nav, err := fk.newNavigation(name, fk.declaringEntityType, true)
	if err != nil {
		return nil, err
	}
	if fk.dependentToPrincipal != nil {
		fk.declaringEntityType.removeNavigation(fk.dependentToPrincipal)
	}
	fk.dependentToPrincipal = nav
	fk.declaringEntityType.navigations = append(fk.declaringEntityType.navigations, nav)
	return nav, nil
}

// SetPrincipalToDependent adds a navigation on the principal type; it is a
// collection unless the foreign key is unique
func (fk *ForeignKey) SetPrincipalToDependent(name string) (*Navigation, error) {
	if err := fk.declaringEntityType.model.ensureMutable(); err != nil {
		return nil, err
	}
	nav, err := fk.newNavigation(name, fk.principalEntityType, false)
	if err != nil {
		return nil, err
	}
	if fk.principalToDependent != nil {
		fk.principalEntityType.removeNavigation(fk.principalToDependent)
	}
	fk.principalToDependent = nav
	fk.principalEntityType.navigations = append(fk.principalEntityType.navigations, nav)
	return nav, nil
}

func (fk *ForeignKey) newNavigation(name string, declaring *EntityType, onDependent bool) (*Navigation, error) {
	if name == "" {
		return nil, newError(ErrInvalidNavigation,
			"A navigation on '%s' must have a name.", declaring.DisplayName())
	}
	if existing := declaring.findMemberInHierarchy(name); existing != "" {
		return nil, newError(ErrDuplicateNavigation,
			"The navigation '%s' cannot be added to the entity type '%s' because a %s with the same name already exists in its hierarchy.",
			name, declaring.DisplayName(), existing)
	}
	return &Navigation{
		name:          name,
		declaringType: declaring,
		foreignKey:    fk,
		onDependent:   onDependent,
		collection:    !onDependent && !fk.unique,
		index:         -1,
	}, nil
}

// NavigationAccessor reads and writes a navigation on an entity instance.
// Reference navigations use Get and Set; collections use Items, Add and Remove.
type NavigationAccessor struct {
	Get    func(entity interface{}) interface{}
	Set    func(entity interface{}, value interface{})
	Items  func(entity interface{}) []interface{}
	Add    func(entity interface{}, item interface{})
	Remove func(entity interface{}, item interface{})
}

// Navigation is a reference or collection member backed by a foreign key
type Navigation struct {
	annotations.Annotatable

	name          string
	declaringType *EntityType
	foreignKey    *ForeignKey
	onDependent   bool
	collection    bool
	accessor      *NavigationAccessor
	index         int
}

// Name returns the navigation name
func (n *Navigation) Name() string { return n.name }

// DeclaringEntityType returns the entity type the navigation is declared on
func (n *Navigation) DeclaringEntityType() *EntityType { return n.declaringType }

// ForeignKey returns the foreign key backing the navigation
func (n *Navigation) ForeignKey() *ForeignKey { return n.foreignKey }

// IsOnDependent reports whether the navigation points from dependent to principal
func (n *Navigation) IsOnDependent() bool { return n.onDependent }

// IsCollection reports whether the navigation holds many entities
func (n *Navigation) IsCollection() bool { return n.collection }

// Accessor returns the member accessor, or nil when values live in the tracking entry
func (n *Navigation) Accessor() *NavigationAccessor { return n.accessor }

// Index returns the position of the navigation in its entity type after finalization
func (n *Navigation) Index() int { return n.index }

// TargetEntityType returns the entity type at the other end
func (n *Navigation) TargetEntityType() *EntityType {
	if n.onDependent {
		return n.foreignKey.principalEntityType
	}
	return n.foreignKey.declaringEntityType
}

// Inverse returns the navigation on the other end of the same foreign key, or nil
func (n *Navigation) Inverse() *Navigation {
	if n.onDependent {
		return n.foreignKey.principalToDependent
	}
	return n.foreignKey.dependentToPrincipal
}

// DisplayName returns EntityType.Navigation
func (n *Navigation) DisplayName() string {
	return n.declaringType.DisplayName() + "." + n.name
}

// SetAccessor backs the navigation by a member of the entity instance
func (n *Navigation) SetAccessor(accessor *NavigationAccessor) error {
	if err := n.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	n.accessor = accessor
	return nil
}

// SkipNavigation is a collection reached through a join entity type
type SkipNavigation struct {
	annotations.Annotatable

	name          string
	declaringType *EntityType
	targetType    *EntityType
	collection    bool
	foreignKey    *ForeignKey
	inverse       *SkipNavigation
}

// Name returns the skip navigation name
func (s *SkipNavigation) Name() string { return s.name }

// DeclaringEntityType returns the entity type the skip navigation is declared on
func (s *SkipNavigation) DeclaringEntityType() *EntityType { return s.declaringType }

// TargetEntityType returns the entity type reached through the join type
func (s *SkipNavigation) TargetEntityType() *EntityType { return s.targetType }

// IsCollection reports whether the member is collection typed
func (s *SkipNavigation) IsCollection() bool { return s.collection }

// ForeignKey returns the foreign key from the join type to the declaring type, or nil
func (s *SkipNavigation) ForeignKey() *ForeignKey { return s.foreignKey }

// Inverse returns the skip navigation on the target type, or nil
func (s *SkipNavigation) Inverse() *SkipNavigation { return s.inverse }

// JoinEntityType returns the dependent type of the backing foreign key, or nil
func (s *SkipNavigation) JoinEntityType() *EntityType {
	if s.foreignKey == nil {
		return nil
	}
	return s.foreignKey.declaringEntityType
}

// DisplayName returns EntityType.Navigation
func (s *SkipNavigation) DisplayName() string {
	return s.declaringType.DisplayName() + "." + s.name
}

// SetForeignKey sets the foreign key from the join type to the declaring type
func (s *SkipNavigation) SetForeignKey(fk *ForeignKey) error {
	if err := s.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	if fk != nil && !s.declaringType.IsAssignableTo(fk.principalEntityType) {
		return newError(ErrInvalidNavigation,
			"The foreign key %s cannot be set for the skip navigation '%s' as it uses the entity type '%s' instead of '%s'.",
			FormatProperties(fk.properties), s.DisplayName(), fk.principalEntityType.DisplayName(), s.declaringType.DisplayName())
	}
	if fk != nil && s.inverse != nil && s.inverse.foreignKey != nil &&
		s.inverse.foreignKey.declaringEntityType != fk.declaringEntityType {
		return newError(ErrInvalidNavigation,
			"The foreign key %s cannot be set for the skip navigation '%s' because its join entity type '%s' differs from the one used by the inverse '%s'.",
			FormatProperties(fk.properties), s.DisplayName(), fk.declaringEntityType.DisplayName(), s.inverse.DisplayName())
	}
	s.foreignKey = fk
	return nil
}

// SetInverse sets the inverse skip navigation. Only this side is updated.
func (s *SkipNavigation) SetInverse(inverse *SkipNavigation) error {
	if err := s.declaringType.model.ensureMutable(); err != nil {
		return err
	}
	if inverse != nil && inverse.declaringType != s.targetType {
		return newError(ErrInvalidNavigation,
			"The skip navigation '%s' cannot be set as the inverse of '%s' because it is declared on '%s' instead of '%s'.",
			inverse.DisplayName(), s.DisplayName(), inverse.declaringType.DisplayName(), s.targetType.DisplayName())
	}
	s.inverse = inverse
	return nil
}
