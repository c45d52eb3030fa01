// Package session assembles one unit of work: a state manager with its
// change detector and navigation fixer, a store to save to and a query
// provider to load from.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/hooks"
	"github.com/conduit-lang/entitycore/internal/orm/query"
	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/storage"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

var (
	// ErrNoStore is returned when saving a session without a store
	ErrNoStore = errors.New("session has no store")
	// ErrNoQueryProvider is returned when querying a session without a provider
	ErrNoQueryProvider = errors.New("session has no query provider")
	// ErrSaveTimeout is returned when SaveChanges exceeds the configured timeout
	ErrSaveTimeout = errors.New("save timeout")
)

// Session is a single-goroutine unit of work
type Session struct {
	id          uuid.UUID
	model       *schema.Model
	manager     *tracking.StateManager
	store       storage.Store
	provider    query.Provider
	hooks       *hooks.Executor
	logger      *zap.Logger
	retry       *RetryConfig
	saveTimeout time.Duration

	sensitive  bool
	autoDetect bool
}

// Option configures a Session
type Option func(*Session)

// WithStore sets the store SaveChanges writes to. A store that also
// implements query.Source becomes the default query source.
func WithStore(store storage.Store) Option {
	return func(s *Session) { s.store = store }
}

// WithQueryProvider sets the provider Query and Scalar execute against
func WithQueryProvider(provider query.Provider) Option {
	return func(s *Session) { s.provider = provider }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHooks runs the lifecycle hooks of executor for this session
func WithHooks(executor *hooks.Executor) Option {
	return func(s *Session) { s.hooks = executor }
}

// WithSensitiveDataLogging includes key values in logs and error messages
func WithSensitiveDataLogging(enabled bool) Option {
	return func(s *Session) { s.sensitive = enabled }
}

// WithAutoDetectChanges controls whether SaveChanges scans for changes first
func WithAutoDetectChanges(enabled bool) Option {
	return func(s *Session) { s.autoDetect = enabled }
}

// WithRetry retries SaveChanges on transient store failures
func WithRetry(config *RetryConfig) Option {
	return func(s *Session) { s.retry = config }
}

// WithSaveTimeout bounds the duration of SaveChanges including retries
func WithSaveTimeout(timeout time.Duration) Option {
	return func(s *Session) { s.saveTimeout = timeout }
}

// New creates a session over a finalized model. It constructs exactly one
// state manager, change detector and navigation fixer.
func New(m *schema.Model, opts ...Option) (*Session, error) {
	s := &Session{
		id:         uuid.New(),
		model:      m,
		logger:     zap.NewNop(),
		autoDetect: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.id.String()))

	if s.provider == nil {
		if source, ok := s.store.(query.Source); ok {
			s.provider = query.NewMemoryProvider(source, query.WithLogger(s.logger))
		}
	}

	trackingOpts := []tracking.Option{
		tracking.WithLogger(s.logger),
		tracking.WithSensitiveDataLogging(s.sensitive),
		tracking.WithAutoDetectChanges(s.autoDetect),
	}
	if s.hooks != nil {
		trackingOpts = append(trackingOpts, tracking.WithObserver(s.hooks))
	}
	manager, err := tracking.NewStateManager(m, trackingOpts...)
	if err != nil {
		return nil, err
	}
	s.manager = manager
	return s, nil
}

// ID returns the session identifier used in logs
func (s *Session) ID() uuid.UUID { return s.id }

// Model returns the model the session tracks
func (s *Session) Model() *schema.Model { return s.model }

// StateManager returns the state manager of the session
func (s *Session) StateManager() *tracking.StateManager { return s.manager }

// ChangeDetector returns the change detector shared by the session
func (s *Session) ChangeDetector() *tracking.ChangeDetector { return s.manager.ChangeDetector() }

// NavigationFixer returns the navigation fixer shared by the session
func (s *Session) NavigationFixer() *tracking.NavigationFixer { return s.manager.NavigationFixer() }

// Add begins tracking entity and its reachable graph as new
func (s *Session) Add(entity interface{}) (*tracking.InternalEntityEntry, error) {
	return s.manager.Add(entity)
}

// Attach begins tracking entity and its reachable graph as existing
func (s *Session) Attach(entity interface{}) (*tracking.InternalEntityEntry, error) {
	return s.manager.Attach(entity)
}

// Update begins tracking entity as existing with every property modified
func (s *Session) Update(entity interface{}) (*tracking.InternalEntityEntry, error) {
	return s.manager.Update(entity)
}

// Remove marks entity for deletion
func (s *Session) Remove(entity interface{}) (*tracking.InternalEntityEntry, error) {
	return s.manager.Remove(entity)
}

// Entry returns the entry tracking entity, or nil
func (s *Session) Entry(entity interface{}) *tracking.InternalEntityEntry {
	return s.manager.Entry(entity)
}

// Find returns the tracked instance of et with the given key, loading it
// from the query provider when it is not tracked yet. It returns nil when no
// row matches.
func (s *Session) Find(ctx context.Context, et *schema.EntityType, key ...interface{}) (interface{}, error) {
	if e, ok := s.manager.TryGetEntry(et, key...); ok {
		if e.State() == tracking.Deleted {
			return nil, nil
		}
		return e.Entity(), nil
	}
	pk := et.FindPrimaryKey()
	if pk == nil || len(pk.Properties()) != len(key) {
		return nil, fmt.Errorf("entity type '%s' has no primary key of %d value(s)", et.DisplayName(), len(key))
	}
	b := query.From(et)
	for i, p := range pk.Properties() {
		b.Where(p.Name(), query.OpEqual, key[i])
	}
	expr, err := b.Limit(1).Build()
	if err != nil {
		return nil, err
	}
	results, err := s.Query(ctx, expr)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

// Query executes expr and returns the tracked instances for its rows. Rows
// whose key is already tracked resolve to the tracked instance.
func (s *Session) Query(ctx context.Context, expr *query.Expression) ([]interface{}, error) {
	if s.provider == nil {
		return nil, ErrNoQueryProvider
	}
	release, err := s.manager.BeginOperation()
	if err != nil {
		return nil, err
	}
	defer release()

	seq, err := s.provider.ExecuteSequence(ctx, expr)
	if err != nil {
		return nil, err
	}
	var results []interface{}
	for row, err := range seq {
		if err != nil {
			return nil, err
		}
		e, err := s.manager.Materialize(expr.EntityType, row)
		if err != nil {
			return nil, err
		}
		results = append(results, e.Entity())
	}
	return results, nil
}

// Scalar executes an aggregate expression
func (s *Session) Scalar(ctx context.Context, expr *query.Expression) (interface{}, error) {
	if s.provider == nil {
		return nil, ErrNoQueryProvider
	}
	release, err := s.manager.BeginOperation()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.provider.ExecuteScalar(ctx, expr)
}

// SaveChanges writes every pending change to the store and returns the
// number of entries written
func (s *Session) SaveChanges(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, ErrNoStore
	}
	if s.saveTimeout <= 0 {
		return s.saveWithRetry(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()
	n, err := s.saveWithRetry(timeoutCtx)
	if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		return 0, fmt.Errorf("%w: save exceeded %v", ErrSaveTimeout, s.saveTimeout)
	}
	return n, err
}

func (s *Session) saveWithRetry(ctx context.Context) (int, error) {
	if s.retry == nil {
		return s.manager.SaveChanges(ctx, s.store)
	}
	var n int
	err := s.retry.Do(ctx, s.logger, func(ctx context.Context) error {
		var err error
		n, err = s.manager.SaveChanges(ctx, s.store)
		return err
	})
	return n, err
}
