package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one JSON bookmark per stream under a prefixed key.
// Keys never expire.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	owned  bool
}

// NewRedisStore creates a store on an existing Redis client. The caller
// keeps ownership of the client.
func NewRedisStore(redisClient *redis.Client, prefix string) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

// DialRedisStore connects to Redis and verifies the connection.
func DialRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	store := NewRedisStore(client, cfg.RedisPrefix)
	store.owned = true
	return store, nil
}

func (s *RedisStore) key(stream string) string {
	return Key{Prefix: s.prefix, Stream: stream}.String()
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, stream string) (Bookmark, error) {
	data, err := s.redis.Get(ctx, s.key(stream)).Bytes()
	if err != nil {
		if err == redis.Nil {
			StateLoads.WithLabelValues(BackendRedis, "miss").Inc()
			return Bookmark{}, ErrNotFound
		}
		StateErrors.WithLabelValues(BackendRedis, "load").Inc()
		return Bookmark{}, fmt.Errorf("redis get: %w", err)
	}

	var b Bookmark
	if err := json.Unmarshal(data, &b); err != nil {
		StateErrors.WithLabelValues(BackendRedis, "load").Inc()
		return Bookmark{}, fmt.Errorf("%w: %v", ErrInvalidBookmark, err)
	}

	StateLoads.WithLabelValues(BackendRedis, "hit").Inc()
	return b, nil
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, stream string, bookmark Bookmark) error {
	data, err := json.Marshal(bookmark)
	if err != nil {
		StateErrors.WithLabelValues(BackendRedis, "save").Inc()
		return fmt.Errorf("marshal bookmark: %w", err)
	}

	if err := s.redis.Set(ctx, s.key(stream), data, 0).Err(); err != nil {
		StateErrors.WithLabelValues(BackendRedis, "save").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	StateSaves.WithLabelValues(BackendRedis).Inc()
	return nil
}

// Delete removes the bookmark of a stream.
func (s *RedisStore) Delete(ctx context.Context, stream string) error {
	if err := s.redis.Del(ctx, s.key(stream)).Err(); err != nil {
		StateErrors.WithLabelValues(BackendRedis, "delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close implements Store. The Redis client is closed only if the store
// created it.
func (s *RedisStore) Close() error {
	if s.owned {
		return s.redis.Close()
	}
	return nil
}
