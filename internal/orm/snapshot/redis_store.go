package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis, one string key per snapshot
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// KeyPrefix is prepended to every snapshot name
	KeyPrefix string
	// TTL expires snapshots; zero keeps them forever
	TTL time.Duration
}

// DefaultRedisConfig returns a default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "entitycore:snapshot:",
	}
}

// NewRedisStore connects to Redis and checks the connection
func NewRedisStore(ctx context.Context, config RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", config.Addr, err)
	}
	return NewRedisStoreWithClient(client, config), nil
}

// NewRedisStoreWithClient creates a store on an existing client
func NewRedisStoreWithClient(client *redis.Client, config RedisConfig) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: config.KeyPrefix,
		ttl:    config.TTL,
	}
}

func (r *RedisStore) key(name string) string {
	return r.prefix + name
}

// Save stores s under its name, replacing an existing snapshot
func (r *RedisStore) Save(ctx context.Context, s *Snapshot) error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	data, err := s.Encode()
	if err != nil {
		return fmt.Errorf("encoding snapshot '%s': %w", s.Name, err)
	}
	if err := r.client.Set(ctx, r.key(s.Name), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving snapshot '%s': %w", s.Name, err)
	}
	return nil
}

// Load reads the named snapshot
func (r *RedisStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: '%s'", ErrNotFound, name)
		}
		return nil, fmt.Errorf("loading snapshot '%s': %w", name, err)
	}
	return Decode(data)
}

// Delete removes the named snapshot; deleting a missing snapshot is not an error
func (r *RedisStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return r.client.Del(ctx, r.key(name)).Err()
}

// List returns the stored snapshot names in order
func (r *RedisStore) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
