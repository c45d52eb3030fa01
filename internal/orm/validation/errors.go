package validation

import (
	"errors"
)

// Error kinds raised by model validation
var (
	ErrShadowEntity                 = errors.New("shadow entity type")
	ErrInconsistentInheritance      = errors.New("inconsistent inheritance")
	ErrAbstractLeafEntityType       = errors.New("abstract leaf entity type")
	ErrOpenGenericLeafEntityType    = errors.New("open generic leaf entity type")
	ErrEntityRequiresKey            = errors.New("entity type requires a key")
	ErrReferencedShadowKey          = errors.New("referenced shadow key")
	ErrMutableKeyProperty           = errors.New("mutable key property")
	ErrNonComparableKeyType         = errors.New("non-comparable key type")
	ErrForeignKeyTypeMismatch       = errors.New("foreign key type mismatch")
	ErrSkipNavigationNoForeignKey   = errors.New("skip navigation without foreign key")
	ErrSkipNavigationNoInverse      = errors.New("skip navigation without inverse")
	ErrSkipNavigationNonCollection  = errors.New("skip navigation is not a collection")
	ErrSkipNavigationInverse        = errors.New("skip navigation inverse mismatch")
	ErrMultipleOwnerships           = errors.New("multiple ownerships")
	ErrOwnerlessOwnedType           = errors.New("ownerless owned type")
	ErrPrincipalOwnedType           = errors.New("principal owned type")
	ErrInverseToOwnedType           = errors.New("navigation to owned type")
	ErrIdentifyingRelationshipCycle = errors.New("identifying relationship cycle")
	ErrNoDiscriminatorProperty      = errors.New("missing discriminator property")
	ErrNoDiscriminatorValue         = errors.New("missing discriminator value")
	ErrDuplicateDiscriminatorValue  = errors.New("duplicate discriminator value")
	ErrChangeTrackingInterface      = errors.New("missing change tracking interface")
	ErrSeedData                     = errors.New("invalid seed data")

	// Warning kinds; returned only when escalated
	ErrRedundantIndex           = errors.New("redundant index")
	ErrMaxLengthIgnored         = errors.New("max length ignored")
	ErrUnnecessaryDiscriminator = errors.New("unnecessary discriminator")
)

// Severity classifies a violation
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// WarningID identifies a class of warning that can be escalated to an error
type WarningID string

const (
	WarningRedundantIndex           WarningID = "RedundantIndex"
	WarningMaxLengthIgnored         WarningID = "MaxLengthIgnored"
	WarningUnnecessaryDiscriminator WarningID = "UnnecessaryDiscriminator"
)

// Violation is a single rule finding with a fully rendered message
type Violation struct {
	Rule     string
	Severity Severity
	Warning  WarningID
	Kind     error
	Message  string
}

// Error implements the error interface
func (v *Violation) Error() string {
	return v.Message
}

// Unwrap exposes the violation kind to errors.Is
func (v *Violation) Unwrap() error {
	return v.Kind
}

// IsViolation returns true if err carries a model validation violation
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}
