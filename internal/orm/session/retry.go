package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/storage"
)

const (
	// DefaultMaxRetries is the default number of save attempts
	DefaultMaxRetries = 3
	// DefaultBaseBackoff is the default base backoff duration
	DefaultBaseBackoff = 100 * time.Millisecond
)

// RetryConfig configures retry behavior for SaveChanges
type RetryConfig struct {
	MaxRetries  int
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		BaseBackoff: DefaultBaseBackoff,
	}
}

// Do runs fn until it succeeds, fails with a non-transient error or the
// attempts are used up. The backoff doubles after every transient failure.
func (c *RetryConfig) Do(ctx context.Context, logger *zap.Logger, fn func(ctx context.Context) error) error {
	attempts := c.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("save cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !storage.IsTransient(err) {
			return err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		backoff := c.BaseBackoff * time.Duration(1<<uint(attempt))
		logger.Warn("retrying save after transient failure",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("save cancelled during retry: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("save failed after %d attempts: %w", attempts, lastErr)
}
