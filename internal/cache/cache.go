// Package cache provides the Redis-backed key/value store used for query
// results and session state.
//
// The cache is an optimization, never a dependency: when Redis is
// unreachable every operation degrades to a no-op or an absent read instead
// of returning an error. Callers therefore never branch on cache failures.
// After a failure the store retries the connection on its own, at most once
// per reprobeInterval, so caching resumes without any external health poll.
//
// All cache keys in the system are produced by DeriveKey; callers must not
// hand-build keys.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opschat/opschat/internal/log"
)

const (
	// pingTimeout bounds the connectivity probe so a down Redis never
	// blocks request handling.
	pingTimeout = 2 * time.Second

	// reprobeInterval gates hot-path reconnection attempts after a
	// failure: while disconnected, at most one operation per interval
	// pays for a ping.
	reprobeInterval = 15 * time.Second
)

// redisCmdable is the subset of the go-redis client the store uses.
// Consumer-defined so tests can substitute a mock.
type redisCmdable interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Keys(ctx context.Context, pattern string) *redis.StringSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Store is a TTL key/value store over Redis.
// Safe for concurrent use.
type Store struct {
	client    redisCmdable
	logger    log.Logger
	connected atomic.Bool
	lastProbe atomic.Int64 // unix nanos of the most recent probe or failure
	now       func() time.Time
}

// New creates a Store connected to the given Redis address. The initial
// connectivity probe is best-effort: a down Redis yields a disconnected
// store, not an error.
func New(ctx context.Context, addr, password string, db int, logger log.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	s := &Store{client: client, logger: logger, now: time.Now}
	if s.probe(ctx) {
		logger.Info("cache connected", "addr", addr)
	} else {
		logger.Warn("cache unavailable, running without cache", "addr", addr)
	}
	return s
}

// NewWithClient creates a Store over an existing client. Used in tests.
func NewWithClient(client redisCmdable, logger log.Logger) *Store {
	s := &Store{client: client, logger: logger, now: time.Now}
	s.connected.Store(true)
	return s
}

// probe pings Redis with a bounded timeout and updates the connectivity flag.
func (s *Store) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok := s.client.Ping(ctx).Err() == nil
	s.connected.Store(ok)
	s.lastProbe.Store(s.now().UnixNano())
	return ok
}

// markDisconnected records an operation failure and stamps the probe clock
// so the next reconnection attempt waits out the full interval.
func (s *Store) markDisconnected() {
	s.connected.Store(false)
	s.lastProbe.Store(s.now().UnixNano())
}

// usable reports whether operations may hit Redis. While disconnected it
// re-probes once per reprobeInterval; losers of the stamp race stay on the
// short-circuit path.
func (s *Store) usable(ctx context.Context) bool {
	if s.connected.Load() {
		return true
	}

	last := s.lastProbe.Load()
	nowNanos := s.now().UnixNano()
	if nowNanos-last < int64(reprobeInterval) {
		return false
	}
	if !s.lastProbe.CompareAndSwap(last, nowNanos) {
		return false
	}

	if s.probe(ctx) {
		s.logger.Info("cache reconnected")
		return true
	}
	return false
}

// Connected re-probes Redis and reports whether the store is usable.
func (s *Store) Connected(ctx context.Context) bool {
	return s.probe(ctx)
}

// DeriveKey derives a deterministic cache key from a category and parameters.
//
// Mapping parameters are sorted lexicographically by key before joining, so
// semantically identical parameter sets always yield the same key regardless
// of construction order. String parameters are appended verbatim.
func DeriveKey(category string, params any) string {
	switch p := params.(type) {
	case string:
		return category + ":" + p
	case map[string]string:
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+p[k])
		}
		return category + ":" + strings.Join(parts, ":")
	default:
		// Unsupported shapes collapse to a representation-stable fallback.
		return category + ":" + fmt.Sprintf("%v", p)
	}
}

// Get reads a value. The second return is false when the key is missing,
// expired, or the store is unreachable; unavailability is never an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.usable(ctx) {
		return nil, false
	}

	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("cache read failed", "key", key, "error", err)
			s.markDisconnected()
		}
		return nil, false
	}
	return val, true
}

// Set writes a value with a TTL. Best-effort: a failed write is logged and
// reported false but never fails the originating operation.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !s.usable(ctx) {
		return false
	}

	if err := s.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
		s.markDisconnected()
		return false
	}
	return true
}

// SetIfAbsent writes a value with a TTL only when the key does not exist
// yet. Returns true when this call created the key. Used for atomic
// get-or-create of sessions.
func (s *Store) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !s.usable(ctx) {
		return false
	}

	created, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		s.logger.Warn("cache conditional write failed", "key", key, "error", err)
		s.markDisconnected()
		return false
	}
	return created
}

// Delete removes a single key.
func (s *Store) Delete(ctx context.Context, key string) bool {
	if !s.usable(ctx) {
		return false
	}

	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		s.logger.Warn("cache delete failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

// DeleteMatching removes all keys matching a glob pattern and returns the
// count. Administrative use only; KEYS is not for the hot path.
func (s *Store) DeleteMatching(ctx context.Context, pattern string) int {
	if !s.usable(ctx) {
		return 0
	}

	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		s.logger.Warn("cache key scan failed", "pattern", pattern, "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}

	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn("cache bulk delete failed", "pattern", pattern, "error", err)
		return 0
	}
	return int(n)
}

// Close releases the underlying connection when the client holds one.
// Test doubles without a Close are fine.
func (s *Store) Close() error {
	if c, ok := s.client.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
