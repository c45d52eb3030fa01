package session

import (
	"context"
)

type contextKey string

const contextKeySession contextKey = "entitycore:session"

// FromContext retrieves a session from the context
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKeySession).(*Session)
	return s, ok
}

// WithContext returns a new context carrying s
func WithContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKeySession, s)
}

// MustFromContext retrieves a session from the context and panics when none is present
func MustFromContext(ctx context.Context) *Session {
	s, ok := FromContext(ctx)
	if !ok {
		panic("no session found in context")
	}
	return s
}
