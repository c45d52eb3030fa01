// Package modelcache builds each model configuration once per process.
// Configurations are identified by a fingerprint of their key; concurrent
// requests for the same fingerprint share a single build.
package modelcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
)

// ErrNotFinalized is returned when a build function returns a model that
// could not be finalized
var ErrNotFinalized = errors.New("model not finalized")

// Key identifies a model configuration
type Key struct {
	Name    string
	Options map[string]string
}

// Fingerprint hashes the key; option order does not matter
func (k Key) Fingerprint() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(k.Name)
	names := make([]string, 0, len(k.Options))
	for name := range k.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = d.WriteString("\x00" + name + "=" + k.Options[name])
	}
	return d.Sum64()
}

// BuildFunc builds a model. The cache finalizes the returned model with its
// validate function when the builder has not done so.
type BuildFunc func(ctx context.Context) (*schema.Model, error)

// Cache holds finalized models by fingerprint
type Cache struct {
	group    singleflight.Group
	mu       sync.RWMutex
	models   map[uint64]*schema.Model
	validate func(*schema.Model) error
	logger   *zap.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithValidator sets the function models are validated with at finalization
func WithValidator(validate func(*schema.Model) error) Option {
	return func(c *Cache) { c.validate = validate }
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		models: make(map[uint64]*schema.Model),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrBuild returns the model cached for key, building and finalizing it
// when absent. Failed builds are not cached.
func (c *Cache) GetOrBuild(ctx context.Context, key Key, build BuildFunc) (*schema.Model, error) {
	fp := key.Fingerprint()
	if m, ok := c.lookup(fp); ok {
		c.logger.Debug("model cache hit", zap.String("model", key.Name), zap.Uint64("fingerprint", fp))
		return m, nil
	}

	ch := c.group.DoChan(strconv.FormatUint(fp, 16), func() (interface{}, error) {
		if m, ok := c.lookup(fp); ok {
			return m, nil
		}
		m, err := build(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if err := m.Finalize(c.validate); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFinalized, key.Name, err)
		}

		c.mu.Lock()
		c.models[fp] = m
		c.mu.Unlock()
		c.logger.Info("model built",
			zap.String("model", key.Name),
			zap.Uint64("fingerprint", fp),
			zap.Int("entity_types", len(m.GetEntityTypes())))
		return m, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*schema.Model), nil
	}
}

// Get returns the model cached for key
func (c *Cache) Get(key Key) (*schema.Model, bool) {
	return c.lookup(key.Fingerprint())
}

// Invalidate drops the model cached for key
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.models, key.Fingerprint())
	c.mu.Unlock()
}

// Len returns the number of cached models
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

func (c *Cache) lookup(fp uint64) (*schema.Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[fp]
	return m, ok
}
