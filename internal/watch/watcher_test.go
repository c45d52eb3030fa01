package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReportsWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(model, []byte("name: a\n"), 0o644))

	w, err := New([]string{model}, WithDelay(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan []string, 10)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(changed []string) { changes <- changed })
	}()

	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(model, []byte("name: b\n"), 0o644))

	select {
	case changed := <-changes:
		resolved, err := filepath.Abs(model)
		require.NoError(t, err)
		assert.Equal(t, []string{resolved}, changed)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(model, []byte("v0"), 0o644))

	w, err := New([]string{model}, WithDelay(200*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan []string, 10)
	go w.Run(ctx, func(changed []string) { changes <- changed })

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(model, []byte{byte('a' + i)}, 0o644))
	}

	select {
	case changed := <-changes:
		assert.Len(t, changed, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	select {
	case <-changes:
		t.Fatal("burst reported more than once")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing", "model.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch directory")
}
