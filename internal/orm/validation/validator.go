// Package validation checks a metadata graph for structural problems before
// the model is finalized. Rules run in a fixed order; the first rule that
// reports an error stops the pass.
package validation

import (
	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// Rule is an independent check over the model
type Rule interface {
	Name() string
	Check(m *schema.Model) []*Violation
}

type ruleFunc struct {
	name  string
	check func(m *schema.Model) []*Violation
}

func (r ruleFunc) Name() string { return r.name }
func (r ruleFunc) Check(m *schema.Model) []*Violation { return r.check(m) }

// NewRule adapts a function to the Rule interface
func NewRule(name string, check func(m *schema.Model) []*Violation) Rule {
	return ruleFunc{name: name, check: check}
}

// DefaultRules returns the built-in rules in evaluation order
func DefaultRules() []Rule {
	return []Rule{
		NewRule("ShadowEntities", checkShadowEntities),
		NewRule("ClrInheritance", checkClrInheritance),
		NewRule("PrimaryKeys", checkPrimaryKeys),
		NewRule("ReferencedShadowKeys", checkReferencedShadowKeys),
		NewRule("MutableKeys", checkMutableKeys),
		NewRule("KeyComparers", checkKeyComparers),
		NewRule("Relationships", checkRelationships),
		NewRule("SkipNavigations", checkSkipNavigations),
		NewRule("Ownership", checkOwnership),
		NewRule("IdentifyingCycles", checkIdentifyingCycles),
		NewRule("Discriminators", checkDiscriminators),
		NewRule("ChangeTracking", checkChangeTracking),
		NewRule("SeedData", checkSeedData),
		NewRule("Indexes", checkIndexes),
		NewRule("PropertyFacets", checkPropertyFacets),
	}
}

// Validator runs rules against a model
type Validator struct {
	rules       []Rule
	logger      *zap.Logger
	escalateAll bool
	escalated   map[WarningID]bool
}

// Option configures a Validator
type Option func(*Validator)

// WithLogger sets the logger that receives warnings
func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithWarningsAsErrors escalates the given warnings to errors, or all warnings
// when no id is given
func WithWarningsAsErrors(ids ...WarningID) Option {
	return func(v *Validator) {
		if len(ids) == 0 {
			v.escalateAll = true
			return
		}
		for _, id := range ids {
			v.escalated[id] = true
		}
	}
}

// WithRules replaces the rule set
func WithRules(rules ...Rule) Option {
	return func(v *Validator) {
		v.rules = rules
	}
}

// New creates a validator with the default rules
func New(opts ...Option) *Validator {
	v := &Validator{
		rules:     DefaultRules(),
		logger:    zap.NewNop(),
		escalated: make(map[WarningID]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the rules in order. It returns the first error of the first
// rule that reports one; warnings are logged unless escalated.
func (v *Validator) Validate(m *schema.Model) error {
	v.logger.Debug("validating model", zap.Int("entity_types", len(m.GetEntityTypes())))

	for _, rule := range v.rules {
		var errs []*Violation
		for _, violation := range rule.Check(m) {
			if v.IsError(violation) {
				errs = append(errs, violation)
				continue
			}
			v.logger.Warn(violation.Message,
				zap.String("rule", violation.Rule),
				zap.String("warning", string(violation.Warning)))
		}
		if len(errs) > 0 {
			v.logger.Debug("model validation failed",
				zap.String("rule", rule.Name()),
				zap.Int("errors", len(errs)))
			return errs[0]
		}
	}
	return nil
}

// Collect runs every rule and returns all violations without stopping
func (v *Validator) Collect(m *schema.Model) []*Violation {
	var all []*Violation
	for _, rule := range v.rules {
		all = append(all, rule.Check(m)...)
	}
	return all
}

// IsError reports whether the violation fails validation under this validator
func (v *Validator) IsError(violation *Violation) bool {
	if violation.Severity == SeverityError {
		return true
	}
	return v.escalateAll || v.escalated[violation.Warning]
}

// Validate runs the default rules with no logging
func Validate(m *schema.Model) error {
	return New().Validate(m)
}

func newViolation(rule string, kind error, message string) *Violation {
	return &Violation{Rule: rule, Severity: SeverityError, Kind: kind, Message: message}
}

func newWarning(rule string, id WarningID, kind error, message string) *Violation {
	return &Violation{Rule: rule, Severity: SeverityWarning, Warning: id, Kind: kind, Message: message}
}
