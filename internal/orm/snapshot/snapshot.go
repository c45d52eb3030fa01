// Package snapshot persists finalized models so that later processes can
// load a precomputed model instead of building it again. A snapshot records
// the product version that produced it; loading checks that version against
// the running one.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/entitycore/internal/orm/definition"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

var (
	ErrNotFound            = errors.New("snapshot not found")
	ErrIncompatibleVersion = errors.New("incompatible snapshot version")
	ErrNotFinalized        = errors.New("model is not finalized")
	ErrCorrupt             = errors.New("snapshot is corrupt")
	ErrInvalidName         = errors.New("invalid snapshot name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Store keeps snapshots by name
type Store interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context, name string) (*Snapshot, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}

// Snapshot is a serialized finalized model
type Snapshot struct {
	Name           string               `yaml:"name"`
	ProductVersion string               `yaml:"productVersion"`
	Fingerprint    string               `yaml:"fingerprint"`
	CreatedAt      time.Time            `yaml:"createdAt"`
	Model          *definition.Document `yaml:"model"`
}

// Take captures m, which must be finalized
func Take(m *schema.Model, name string) (*Snapshot, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if !m.IsReadOnly() {
		return nil, fmt.Errorf("%w: cannot snapshot '%s'", ErrNotFinalized, name)
	}
	doc := definition.Export(m, name)
	fingerprint, err := fingerprintOf(doc)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Name:           name,
		ProductVersion: m.ProductVersion(),
		Fingerprint:    fingerprint,
		CreatedAt:      time.Now().UTC(),
		Model:          doc,
	}, nil
}

// ValidateName rejects names that cannot be used as file names or key suffixes
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Encode serializes the snapshot as YAML
func (s *Snapshot) Encode() ([]byte, error) {
	return yaml.Marshal(s)
}

// Decode parses a snapshot and verifies its fingerprint
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if s.Model == nil {
		return nil, fmt.Errorf("%w: '%s' has no model", ErrCorrupt, s.Name)
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Verify recomputes the fingerprint of the model document
func (s *Snapshot) Verify() error {
	fingerprint, err := fingerprintOf(s.Model)
	if err != nil {
		return err
	}
	if fingerprint != s.Fingerprint {
		return fmt.Errorf("%w: fingerprint of '%s' is %s, expected %s", ErrCorrupt, s.Name, fingerprint, s.Fingerprint)
	}
	return nil
}

// Build turns the snapshot back into a mutable model
func (s *Snapshot) Build(opts ...definition.BuildOption) (*schema.Model, error) {
	return definition.Build(s.Model, opts...)
}

func fingerprintOf(doc *definition.Document) (string, error) {
	data, err := doc.Marshal()
	if err != nil {
		return "", fmt.Errorf("encoding model document: %w", err)
	}
	return strconv.FormatUint(xxhash.Sum64(data), 16), nil
}

// CheckVersion reports whether a snapshot produced by version can be loaded
// by current. Versions that only differ in the patch number are compatible;
// patchOnly is true in that case.
func CheckVersion(version, current string) (patchOnly bool, err error) {
	got, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("%w: invalid product version %q", ErrIncompatibleVersion, version)
	}
	want, err := semver.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("%w: invalid product version %q", ErrIncompatibleVersion, current)
	}
	if got.Major() != want.Major() || got.Minor() != want.Minor() {
		return false, fmt.Errorf(
			"%w: the model was built with product version %s and cannot be used with version %s; rebuild the snapshot",
			ErrIncompatibleVersion, version, current)
	}
	return !got.Equal(want), nil
}
