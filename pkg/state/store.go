package state

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates no bookmark has been persisted for the stream.
	ErrNotFound = errors.New("bookmark not found")

	// ErrInvalidBookmark indicates a persisted bookmark could not be decoded.
	ErrInvalidBookmark = errors.New("invalid bookmark")
)

// Bookmark is the persisted replication state of one stream.
type Bookmark struct {
	ReplicationKeyValue string `json:"replication_key_value"`
}

// Store persists bookmarks keyed by stream name. Save must be durable when it
// returns.
type Store interface {
	Load(ctx context.Context, stream string) (Bookmark, error)
	Save(ctx context.Context, stream string, bookmark Bookmark) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend string

	// Path is the state file (file) or database file (sqlite).
	Path string

	// Redis connection (redis backend)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("state path is required for the file backend")
		}
		return NewFileStore(cfg.Path), nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("state path is required for the sqlite backend")
		}
		return NewSQLiteStore(cfg.Path)
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis address is required for the redis backend")
		}
		return DialRedisStore(ctx, cfg)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
