package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, DefaultRedisConfig())
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestNewRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	config := DefaultRedisConfig()
	config.Addr = mr.Addr()

	store, err := NewRedisStore(context.Background(), config)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	config := DefaultRedisConfig()
	config.Addr = "localhost:99999"

	_, err := NewRedisStore(context.Background(), config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis at localhost:99999")
}

func TestRedisStore_SaveLoad(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	s, err := Take(libraryModel(t, ""), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))
	assert.True(t, mr.Exists("entitycore:snapshot:library"))

	loaded, err := store.Load(ctx, "library")
	require.NoError(t, err)
	assert.Equal(t, s.Fingerprint, loaded.Fingerprint)
	assert.Equal(t, s.Model, loaded.Model)

	_, err = store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_ListAndDelete(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("unrelated", "x"))

	for _, name := range []string{"library", "archive"} {
		s, err := Take(libraryModel(t, ""), name)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, s))
	}

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive", "library"}, names)

	require.NoError(t, store.Delete(ctx, "archive"))
	require.NoError(t, store.Delete(ctx, "archive"))
	names, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"library"}, names)
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config := DefaultRedisConfig()
	config.TTL = time.Minute
	store := NewRedisStoreWithClient(client, config)
	defer store.Close()
	ctx := context.Background()

	s, err := Take(libraryModel(t, ""), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))
	assert.Equal(t, time.Minute, mr.TTL("entitycore:snapshot:library"))

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(ctx, "library")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("entitycore:snapshot:broken", "name: ["))

	_, err := store.Load(context.Background(), "broken")
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestRedisStore_FeedsLoader(t *testing.T) {
	store, _ := setupTestRedis(t)
	ctx := context.Background()
	s, err := Take(libraryModel(t, ""), "library")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, s))

	m, err := NewLoader(store, "library").Model(ctx)
	require.NoError(t, err)
	assert.NotNil(t, m.FindEntityType("Author"))
}
