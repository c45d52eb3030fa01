package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/definition"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// Loader supplies a precomputed model from a store. The snapshot is read,
// version checked and finalized on the first call to Model.
type Loader struct {
	store    Store
	name     string
	current  string
	validate func(*schema.Model) error
	build    []definition.BuildOption
	logger   *zap.Logger

	mu    sync.Mutex
	model *schema.Model
	err   error
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithValidator validates the rebuilt model before it is finalized
func WithValidator(validate func(*schema.Model) error) LoaderOption {
	return func(l *Loader) { l.validate = validate }
}

// WithProductVersion overrides the running product version
func WithProductVersion(version string) LoaderOption {
	return func(l *Loader) { l.current = version }
}

// WithBuildOptions passes options to the document builder
func WithBuildOptions(opts ...definition.BuildOption) LoaderOption {
	return func(l *Loader) { l.build = append(l.build, opts...) }
}

// NewLoader creates a loader for the named snapshot
func NewLoader(store Store, name string, opts ...LoaderOption) *Loader {
	l := &Loader{
		store:   store,
		name:    name,
		current: schema.ProductVersion,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Model returns the finalized model. Success and version incompatibility are
// remembered; other failures are retried on the next call.
func (l *Loader) Model(ctx context.Context) (*schema.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.model != nil || l.err != nil {
		return l.model, l.err
	}
	m, err := l.load(ctx)
	if err != nil {
		if errors.Is(err, ErrIncompatibleVersion) {
			l.err = err
		}
		return nil, err
	}
	l.model = m
	return m, nil
}

func (l *Loader) load(ctx context.Context) (*schema.Model, error) {
	s, err := l.store.Load(ctx, l.name)
	if err != nil {
		return nil, err
	}

	patchOnly, err := CheckVersion(s.ProductVersion, l.current)
	if err != nil {
		l.logger.Error("snapshot version is incompatible",
			zap.String("snapshot", l.name),
			zap.String("snapshot_version", s.ProductVersion),
			zap.String("product_version", l.current))
		return nil, err
	}
	if patchOnly {
		l.logger.Warn("snapshot was built by a different patch version",
			zap.String("snapshot", l.name),
			zap.String("snapshot_version", s.ProductVersion),
			zap.String("product_version", l.current))
	}

	m, err := s.Build(l.build...)
	if err != nil {
		return nil, fmt.Errorf("rebuilding snapshot '%s': %w", l.name, err)
	}
	if err := m.Finalize(l.validate); err != nil {
		return nil, fmt.Errorf("%w: snapshot '%s': %w", ErrNotFinalized, l.name, err)
	}
	l.logger.Info("snapshot loaded",
		zap.String("snapshot", l.name),
		zap.Int("entity_types", len(m.GetEntityTypes())))
	return m, nil
}
