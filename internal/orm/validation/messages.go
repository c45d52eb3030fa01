package validation

import "fmt"

// Message templates. Callers pass display names; tests compare the rendered strings.

func ShadowEntity(entityType string) string {
	return fmt.Sprintf("The entity type '%s' is in shadow state. A valid model requires all entity types to have a corresponding CLR type.", entityType)
}

func InconsistentInheritance(entityType, baseEntityType string) string {
	return fmt.Sprintf("The entity type '%s' should derive from '%s' to reflect the hierarchy of the corresponding CLR types.", entityType, baseEntityType)
}

func AbstractLeafEntityType(entityType string) string {
	return fmt.Sprintf("The corresponding CLR type for entity type '%s' cannot be instantiated, and there is no derived entity type in the model that corresponds to a concrete CLR type.", entityType)
}

func OpenGenericLeafEntityType(entityType string) string {
	return fmt.Sprintf("The corresponding CLR type for entity type '%s' is an open generic type, and there is no derived entity type in the model that closes it.", entityType)
}

func EntityRequiresKey(entityType string) string {
	return fmt.Sprintf("The entity type '%s' requires a primary key to be defined. If you intended to use a keyless entity type, mark it as keyless explicitly.", entityType)
}

func ReferencedShadowKey(referencingEntityTypeOrNavigation, referencedEntityTypeOrNavigation, foreignKeyPropertiesWithTypes, primaryKeyPropertiesWithTypes string) string {
	return fmt.Sprintf("The relationship from '%s' to '%s' with foreign key properties %s cannot target the primary key %s because it is not compatible. Configure a principal key or a set of compatible foreign key properties for this relationship.",
		referencingEntityTypeOrNavigation, referencedEntityTypeOrNavigation, foreignKeyPropertiesWithTypes, primaryKeyPropertiesWithTypes)
}

func MutableKeyProperty(keyProperty string) string {
	return fmt.Sprintf("The property '%s' cannot be configured as 'ValueGeneratedOnUpdate' or 'ValueGeneratedOnAddOrUpdate' because the key value cannot be changed after the entity has been added to the store.", keyProperty)
}

func NonComparableKeyType(property, propertyType string) string {
	return fmt.Sprintf("The property '%s' cannot be used as a key because it has type '%s' which cannot be compared by default. Configure a value comparer for the property.", property, propertyType)
}

func NonComparableUniqueIndexType(property, index, propertyType string) string {
	return fmt.Sprintf("The property '%s' cannot be used in the unique index %s because it has type '%s' which cannot be compared by default. Configure a value comparer for the property.", property, index, propertyType)
}

func ForeignKeyTypeMismatch(foreignKeyProperties, dependentType, principalKeyProperties, principalType string) string {
	return fmt.Sprintf("The types of the properties specified for the foreign key %s on entity type '%s' do not match the types of the properties in the principal key %s on entity type '%s'. Provide properties that use the same types in the same order.",
		foreignKeyProperties, dependentType, principalKeyProperties, principalType)
}

func SkipNavigationNoForeignKey(navigation, entityType string) string {
	return fmt.Sprintf("The skip navigation '%s' declared on the entity type '%s' does not have a foreign key associated with it. Every skip navigation must have a configured foreign key.", navigation, entityType)
}

func SkipNavigationNoInverse(navigation, entityType string) string {
	return fmt.Sprintf("The skip navigation '%s' declared on the entity type '%s' does not have an inverse navigation configured. Every skip navigation must have an inverse skip navigation.", navigation, entityType)
}

func SkipNavigationNonCollection(navigation, entityType string) string {
	return fmt.Sprintf("The skip navigation '%s' on the entity type '%s' is not a collection. Only collection skip navigations are supported.", navigation, entityType)
}

func SkipNavigationInverseMismatch(navigation, inverse string) string {
	return fmt.Sprintf("The skip navigation '%s' uses '%s' as its inverse, but '%s' does not use '%s' as its inverse.", navigation, inverse, inverse, navigation)
}

func MultipleOwnerships(entityType string) string {
	return fmt.Sprintf("The entity type '%s' is the target of multiple ownership relationships.", entityType)
}

func OwnerlessOwnedType(ownedType string) string {
	return fmt.Sprintf("The owned entity type '%s' must be referenced from another entity type via a navigation. Add a navigation to an entity type that points at '%s'.", ownedType, ownedType)
}

func PrincipalOwnedType(referencingEntityTypeOrNavigation, referencedEntityTypeOrNavigation, ownedType string) string {
	return fmt.Sprintf("The relationship from '%s' to '%s' is not supported because the owned entity type '%s' cannot be on the principal side of a non-ownership relationship.",
		referencingEntityTypeOrNavigation, referencedEntityTypeOrNavigation, ownedType)
}

func InverseToOwnedType(principalEntityType, navigation, ownedType, ownerType string) string {
	return fmt.Sprintf("The navigation '%s.%s' is not supported because it is pointing to an owned entity type '%s'. Only the ownership navigation from the entity type '%s' can point to the owned entity type.",
		principalEntityType, navigation, ownedType, ownerType)
}

func IdentifyingRelationshipCycle(cycle string) string {
	return fmt.Sprintf("The entity types in '%s' form a relationship cycle involving their primary keys. At least one relationship in the cycle must be optional or target an independently generated key.", cycle)
}

func NoDiscriminatorProperty(entityType string) string {
	return fmt.Sprintf("The entity type '%s' is part of a hierarchy, but does not have a discriminator property configured.", entityType)
}

func DiscriminatorPropertyNotFound(property, entityType string) string {
	return fmt.Sprintf("The discriminator property '%s' is not declared on the root entity type '%s'.", property, entityType)
}

func NoDiscriminatorValue(entityType string) string {
	return fmt.Sprintf("The entity type '%s' is part of a hierarchy, but does not have a discriminator value configured.", entityType)
}

func DuplicateDiscriminatorValue(entityType1 string, discriminatorValue interface{}, entityType2 string) string {
	return fmt.Sprintf("The discriminator value for '%s' is '%v' which is the same for '%s'. Every concrete entity type in the hierarchy must have a unique discriminator value.", entityType1, discriminatorValue, entityType2)
}

func ChangeTrackingInterfaceMissing(entityType, changeTrackingStrategy, notificationInterface string) string {
	return fmt.Sprintf("The entity type '%s' is configured to use the '%s' change tracking strategy but does not implement the required '%s' interface.", entityType, changeTrackingStrategy, notificationInterface)
}

func SeedDatumMissingValue(entityType, property string) string {
	return fmt.Sprintf("The seed entity for entity type '%s' cannot be added because no value was provided for the required property '%s'.", entityType, property)
}

func SeedDatumDefaultValue(entityType, property string, defaultValue interface{}) string {
	return fmt.Sprintf("The seed entity for entity type '%s' cannot be added because a default value was provided for the required property '%s'. Provide a value different from '%v'.", entityType, property, defaultValue)
}

func SeedDatumDerivedType(entityType, derivedType string) string {
	return fmt.Sprintf("The seed entity for entity type '%s' cannot be added because the value provided is of a derived type '%s'. Add the derived seed entities to the corresponding entity type.", entityType, derivedType)
}

func SeedDatumNavigation(entityType, navigation, relatedEntityType, foreignKeyProperties string) string {
	return fmt.Sprintf("The seed entity for entity type '%s' cannot be added because it has the navigation '%s' set. To seed relationships, add the entity seed to '%s' and specify the foreign key values %s.", entityType, navigation, relatedEntityType, foreignKeyProperties)
}

func SeedDatumDuplicate(entityType, keyValue string) string {
	return fmt.Sprintf("The seed entity for entity type '%s' cannot be added because another seed entity with the same key value for %s has already been added.", entityType, keyValue)
}

func SeedDatumUnknownMember(entityType, member string) string {
	return fmt.Sprintf("The seed entity for entity type '%s' cannot be added because it has no property or navigation named '%s'.", entityType, member)
}

func SeedDatumUnrelatedType(entityType, seedType string) string {
	return fmt.Sprintf("The seed entity for entity type '%s' cannot be added because the value provided is of the unrelated type '%s'.", entityType, seedType)
}

func RedundantIndex(index, entityType, coveringIndexOrKey string) string {
	return fmt.Sprintf("The index %s on entity type '%s' is redundant because its properties are already covered by %s.", index, entityType, coveringIndexOrKey)
}

func MaxLengthIgnored(property, propertyType string) string {
	return fmt.Sprintf("The maximum length configured for the property '%s' is ignored because values of type '%s' have no length.", property, propertyType)
}

func UnnecessaryDiscriminator(property, entityType string) string {
	return fmt.Sprintf("The discriminator property '%s' on entity type '%s' is unnecessary because the entity type is not part of a hierarchy.", property, entityType)
}
