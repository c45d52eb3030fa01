package hooks

import (
	"context"

	"github.com/conduit-lang/entitycore/internal/orm/tracking"
)

// Context carries the event a hook runs for together with the caller's context
type Context struct {
	context.Context
	event   Event
	entries []*tracking.InternalEntityEntry
	from    tracking.EntityState
	to      tracking.EntityState
	saved   int
	failure error
}

// NewContext creates a hook context for event
func NewContext(ctx context.Context, event Event) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Context{Context: ctx, event: event}
}

// WithEntries returns a copy of c describing entries
func (c *Context) WithEntries(entries ...*tracking.InternalEntityEntry) *Context {
	cp := *c
	cp.entries = entries
	return &cp
}

// Event returns the lifecycle event
func (c *Context) Event() Event { return c.event }

// Entries returns the entries the event concerns
func (c *Context) Entries() []*tracking.InternalEntityEntry { return c.entries }

// Entry returns the first entry the event concerns, or nil
func (c *Context) Entry() *tracking.InternalEntityEntry {
	if len(c.entries) == 0 {
		return nil
	}
	return c.entries[0]
}

// Transition returns the states of a StateChanged event
func (c *Context) Transition() (from, to tracking.EntityState) { return c.from, c.to }

// Saved returns the number of entries written by a SavedChanges event
func (c *Context) Saved() int { return c.saved }

// Failure returns the error of a SaveChangesFailed event
func (c *Context) Failure() error { return c.failure }
