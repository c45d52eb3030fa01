package hooks

// Event identifies a point in the tracking lifecycle at which hooks run
type Event int

const (
	// Tracked runs after an entity started being tracked
	Tracked Event = iota
	// StateChanged runs after an entry moved to another state
	StateChanged
	// SavingChanges runs before pending entries are written. A failing hook aborts the save.
	SavingChanges
	// SavedChanges runs after the store committed a batch
	SavedChanges
	// SaveChangesFailed runs after the store rejected a batch
	SaveChangesFailed
)

func (e Event) String() string {
	switch e {
	case Tracked:
		return "tracked"
	case StateChanged:
		return "state_changed"
	case SavingChanges:
		return "saving_changes"
	case SavedChanges:
		return "saved_changes"
	case SaveChangesFailed:
		return "save_changes_failed"
	default:
		return "unknown"
	}
}

// carriesEntries reports whether hooks for e receive tracked entries
func (e Event) carriesEntries() bool {
	return e == Tracked || e == StateChanged || e == SavingChanges
}

// HookFunc represents a hook function that can be executed
type HookFunc func(ctx *Context) error

// Hook represents a registered lifecycle hook
type Hook struct {
	Name  string
	Event Event
	Fn    HookFunc
	// EntityType restricts the hook to entries of this entity type or a derived one
	EntityType string
	// Async hooks run on a worker pool after the save returned
	Async bool
}

func (h *Hook) label() string {
	if h.Name != "" {
		return h.Name
	}
	return h.Event.String()
}

// Registry manages all registered hooks
type Registry struct {
	hooks map[Event][]*Hook
}

// NewRegistry creates a new hook registry
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[Event][]*Hook),
	}
}

// Register adds a hook to the registry
func (r *Registry) Register(event Event, hook *Hook) {
	hook.Event = event
	r.hooks[event] = append(r.hooks[event], hook)
}

// GetHooks returns all hooks for a given event in registration order
func (r *Registry) GetHooks(event Event) []*Hook {
	return r.hooks[event]
}

// HasHooks returns true if there are any hooks registered for the given event
func (r *Registry) HasHooks(event Event) bool {
	return len(r.hooks[event]) > 0
}
