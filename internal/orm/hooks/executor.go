package hooks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/schema"
	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

var (
	// ErrAsyncNotSupported is returned when registering an async hook for an
	// event that hands tracked entries to the hook
	ErrAsyncNotSupported = errors.New("async hooks are only supported for saved_changes and save_changes_failed")
	// ErrNoAsyncQueue is returned when registering an async hook on an executor without a queue
	ErrNoAsyncQueue = errors.New("executor has no async queue")
)

// Executor runs lifecycle hooks for a state manager. It implements
// tracking.Observer.
type Executor struct {
	registry   *Registry
	asyncQueue *AsyncQueue
	logger     *zap.Logger
}

var _ tracking.Observer = (*Executor)(nil)

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger used to report hook failures that cannot be
// returned to the caller
func WithLogger(logger *zap.Logger) Option {
	return func(x *Executor) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// WithRegistry uses an existing registry
func WithRegistry(registry *Registry) Option {
	return func(x *Executor) {
		if registry != nil {
			x.registry = registry
		}
	}
}

// NewExecutor creates a new hook executor. asyncQueue may be nil when no
// async hooks are registered.
func NewExecutor(asyncQueue *AsyncQueue, opts ...Option) *Executor {
	x := &Executor{
		registry:   NewRegistry(),
		asyncQueue: asyncQueue,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Register registers a hook
func (x *Executor) Register(event Event, hook *Hook) error {
	if hook == nil || hook.Fn == nil {
		return fmt.Errorf("hook for %s has no function", event)
	}
	if hook.Async {
		if event.carriesEntries() {
			return ErrAsyncNotSupported
		}
		if x.asyncQueue == nil {
			return ErrNoAsyncQueue
		}
	}
	x.registry.Register(event, hook)
	return nil
}

// Registry returns the hook registry
func (x *Executor) Registry() *Registry { return x.registry }

// HasHooks returns true if there are any hooks registered for the given event
func (x *Executor) HasHooks(event Event) bool { return x.registry.HasHooks(event) }

// Execute runs the hooks registered for the event of hookCtx in
// registration order and stops at the first failing synchronous hook
func (x *Executor) Execute(hookCtx *Context) error {
	for _, hook := range x.registry.GetHooks(hookCtx.event) {
		scoped := hookCtx
		if hook.EntityType != "" && hookCtx.event.carriesEntries() {
			entries := filterEntries(hookCtx.entries, hook.EntityType)
			if len(entries) == 0 {
				continue
			}
			scoped = hookCtx.WithEntries(entries...)
		}

		if hook.Async {
			x.enqueueAsyncHook(scoped, hook)
			continue
		}
		if err := hook.Fn(scoped); err != nil {
			return fmt.Errorf("hook %s failed: %w", hook.label(), err)
		}
	}
	return nil
}

func (x *Executor) enqueueAsyncHook(hookCtx *Context, hook *Hook) {
	detached := *hookCtx
	detached.Context = context.WithoutCancel(hookCtx.Context)
	task := AsyncTask{
		Name: hook.label(),
		Fn: func(ctx context.Context) error {
			run := detached
			return hook.Fn(&run)
		},
	}
	if err := x.asyncQueue.Enqueue(task); err != nil {
		x.logger.Warn("failed to enqueue async hook", zap.String("hook", hook.label()), zap.Error(err))
	}
}

// EntityTracked runs Tracked hooks
func (x *Executor) EntityTracked(e *tracking.InternalEntityEntry) {
	if !x.HasHooks(Tracked) {
		return
	}
	x.report(x.Execute(NewContext(context.Background(), Tracked).WithEntries(e)))
}

// StateChanged runs StateChanged hooks
func (x *Executor) StateChanged(e *tracking.InternalEntityEntry, from, to tracking.EntityState) {
	if !x.HasHooks(StateChanged) {
		return
	}
	hookCtx := NewContext(context.Background(), StateChanged).WithEntries(e)
	hookCtx.from, hookCtx.to = from, to
	x.report(x.Execute(hookCtx))
}

// SavingChanges runs SavingChanges hooks; an error aborts the save
func (x *Executor) SavingChanges(ctx context.Context, entries []*tracking.InternalEntityEntry) error {
	if !x.HasHooks(SavingChanges) {
		return nil
	}
	return x.Execute(NewContext(ctx, SavingChanges).WithEntries(entries...))
}

// SavedChanges runs SavedChanges hooks
func (x *Executor) SavedChanges(ctx context.Context, saved int) {
	if !x.HasHooks(SavedChanges) {
		return
	}
	hookCtx := NewContext(ctx, SavedChanges)
	hookCtx.saved = saved
	x.report(x.Execute(hookCtx))
}

// SaveChangesFailed runs SaveChangesFailed hooks
func (x *Executor) SaveChangesFailed(ctx context.Context, err error) {
	if !x.HasHooks(SaveChangesFailed) {
		return
	}
	hookCtx := NewContext(ctx, SaveChangesFailed)
	hookCtx.failure = err
	x.report(x.Execute(hookCtx))
}

func (x *Executor) report(err error) {
	if err != nil {
		x.logger.Warn("lifecycle hook failed", zap.Error(err))
	}
}

// filterEntries keeps the entries whose type is name or derives from it
func filterEntries(entries []*tracking.InternalEntityEntry, name string) []*tracking.InternalEntityEntry {
	var result []*tracking.InternalEntityEntry
	for _, e := range entries {
		if derivesFrom(e.EntityType(), name) {
			result = append(result, e)
		}
	}
	return result
}

func derivesFrom(et *schema.EntityType, name string) bool {
	for t := et; t != nil; t = t.BaseType() {
		if t.Name() == name {
			return true
		}
	}
	return false
}
