// Package cache implements the local persistent key-value layer that keeps a
// copy of every collection.
//
// The cache is the system of record whenever the cloud is unreachable, so every
// driver must be durable across restarts except the in-memory one, which exists
// for tests and throwaway sessions.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Driver names accepted by Open.
const (
	DriverBadger = "badger"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// DefaultQuota mirrors the per-origin budget browsers give local storage.
const DefaultQuota = 5 << 20

var (
	ErrQuotaExceeded = errors.New("cache: quota exceeded")
	ErrClosed        = errors.New("cache: closed")
	ErrUnknownDriver = errors.New("cache: unknown driver")
)

// Cache stores opaque values by string key.
type Cache interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every stored key in lexical order.
	Keys(ctx context.Context) ([]string, error)

	// Size reports the bytes used by keys and values.
	Size(ctx context.Context) (int64, error)

	Close() error
}

// Options configures Open.
type Options struct {
	Driver string
	// Path is a directory for badger and a file for sqlite.
	Path        string
	Quota       int64
	Compression bool
}

// Open creates the cache described by opts and applies its quota.
func Open(opts Options) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch opts.Driver {
	case DriverBadger, "":
		c, err = OpenBadger(opts.Path, opts.Compression)
	case DriverSQLite:
		c, err = OpenSQLite(opts.Path)
	case DriverMemory:
		c = NewMemory()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return WithQuota(c, opts.Quota), nil
}

// WithQuota caps the total size of c. A limit of zero or less disables the cap.
func WithQuota(c Cache, limit int64) Cache {
	if limit <= 0 {
		return c
	}
	return &quotaCache{Cache: c, limit: limit}
}

type quotaCache struct {
	Cache
	limit int64
	mu    sync.Mutex
}

func (q *quotaCache) Set(ctx context.Context, key string, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	used, err := q.Cache.Size(ctx)
	if err != nil {
		return fmt.Errorf("measure cache: %w", err)
	}

	old, ok, err := q.Cache.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read previous value: %w", err)
	}
	if ok {
		used -= int64(len(key) + len(old))
	}

	if need := used + int64(len(key)+len(value)); need > q.limit {
		return fmt.Errorf("%w: %s needs %d bytes, limit is %d", ErrQuotaExceeded, key, need, q.limit)
	}
	return q.Cache.Set(ctx, key, value)
}
