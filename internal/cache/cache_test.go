package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opschat/opschat/internal/log"
)

// mockRedis implements redisCmdable with configurable results and call
// tracking, following the store-test mock idiom used across the codebase.
type mockRedis struct {
	getResult  map[string]string
	getErr     error
	setErr     error
	delErr     error
	keysResult []string
	keysErr    error
	pingErr    error

	getCalls  int
	setCalls  int
	delCalls  int
	keysCalls int
	pingCalls int

	lastSetKey string
	lastSetTTL time.Duration
	lastDel    []string
}

func (m *mockRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.getCalls++
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	val, ok := m.getResult[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (m *mockRedis) SetEx(_ context.Context, key string, _ any, expiration time.Duration) *redis.StatusCmd {
	m.setCalls++
	m.lastSetKey = key
	m.lastSetTTL = expiration
	return redis.NewStatusResult("OK", m.setErr)
}

func (m *mockRedis) SetNX(_ context.Context, key string, _ any, expiration time.Duration) *redis.BoolCmd {
	m.setCalls++
	m.lastSetKey = key
	m.lastSetTTL = expiration
	if m.setErr != nil {
		return redis.NewBoolResult(false, m.setErr)
	}
	_, exists := m.getResult[key]
	return redis.NewBoolResult(!exists, nil)
}

func (m *mockRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.delCalls++
	m.lastDel = keys
	if m.delErr != nil {
		return redis.NewIntResult(0, m.delErr)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockRedis) Keys(_ context.Context, _ string) *redis.StringSliceCmd {
	m.keysCalls++
	return redis.NewStringSliceResult(m.keysResult, m.keysErr)
}

func (m *mockRedis) Ping(_ context.Context) *redis.StatusCmd {
	m.pingCalls++
	return redis.NewStatusResult("PONG", m.pingErr)
}

// expiringRedis is a stateful fake that honors TTLs against an injected
// clock, for tests that need real expiry semantics.
type expiringRedis struct {
	now     func() time.Time
	entries map[string]expiringEntry
}

type expiringEntry struct {
	value     string
	expiresAt time.Time
}

func newExpiringRedis(now func() time.Time) *expiringRedis {
	return &expiringRedis{now: now, entries: map[string]expiringEntry{}}
}

func (f *expiringRedis) live(key string) (expiringEntry, bool) {
	e, ok := f.entries[key]
	if !ok || !f.now().Before(e.expiresAt) {
		return expiringEntry{}, false
	}
	return e, true
}

func (f *expiringRedis) Get(_ context.Context, key string) *redis.StringCmd {
	e, ok := f.live(key)
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(e.value, nil)
}

func (f *expiringRedis) SetEx(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.entries[key] = expiringEntry{
		value:     string(value.([]byte)),
		expiresAt: f.now().Add(expiration),
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *expiringRedis) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.live(key); ok {
		return redis.NewBoolResult(false, nil)
	}
	f.SetEx(context.Background(), key, value, expiration)
	return redis.NewBoolResult(true, nil)
}

func (f *expiringRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.live(k); ok {
			delete(f.entries, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *expiringRedis) Keys(_ context.Context, _ string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(nil, nil)
}

func (f *expiringRedis) Ping(_ context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func TestDeriveKey_MapOrderIndependent(t *testing.T) {
	a := DeriveKey("problems", map[string]string{"b": "2", "a": "1"})
	b := DeriveKey("problems", map[string]string{"a": "1", "b": "2"})

	assert.Equal(t, a, b)
	assert.Equal(t, "problems:a=1:b=2", a)
}

func TestDeriveKey_ScalarVerbatim(t *testing.T) {
	assert.Equal(t, "query:show problems", DeriveKey("query", "show problems"))
}

func TestGet_HitAndMiss(t *testing.T) {
	m := &mockRedis{getResult: map[string]string{"k1": "v1"}}
	s := NewWithClient(m, log.NewNop())

	val, ok := s.Get(context.Background(), "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)

	_, ok = s.Get(context.Background(), "absent")
	assert.False(t, ok)
}

func TestGet_ErrorDegradesToAbsent(t *testing.T) {
	m := &mockRedis{getErr: errors.New("connection refused")}
	s := NewWithClient(m, log.NewNop())

	_, ok := s.Get(context.Background(), "k1")
	assert.False(t, ok)

	// The store marks itself disconnected; subsequent reads short-circuit.
	_, ok = s.Get(context.Background(), "k1")
	assert.False(t, ok)
	assert.Equal(t, 1, m.getCalls)
}

func TestSet_PassesTTLThrough(t *testing.T) {
	m := &mockRedis{}
	s := NewWithClient(m, log.NewNop())

	ok := s.Set(context.Background(), "k1", []byte("v1"), 5*time.Minute)
	require.True(t, ok)
	assert.Equal(t, "k1", m.lastSetKey)
	assert.Equal(t, 5*time.Minute, m.lastSetTTL)
}

func TestGet_ExpiredEntryIsAbsent(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newExpiringRedis(func() time.Time { return current })
	s := NewWithClient(f, log.NewNop())

	require.True(t, s.Set(context.Background(), "k1", []byte("v1"), 5*time.Minute))

	val, ok := s.Get(context.Background(), "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)

	// Still live one second before the deadline.
	current = current.Add(5*time.Minute - time.Second)
	_, ok = s.Get(context.Background(), "k1")
	assert.True(t, ok)

	// Gone once the TTL has elapsed.
	current = current.Add(2 * time.Second)
	_, ok = s.Get(context.Background(), "k1")
	assert.False(t, ok)
}

func TestSetIfAbsent_ExpiredKeyIsCreatable(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f := newExpiringRedis(func() time.Time { return current })
	s := NewWithClient(f, log.NewNop())

	require.True(t, s.SetIfAbsent(context.Background(), "k1", []byte("v1"), time.Minute))
	assert.False(t, s.SetIfAbsent(context.Background(), "k1", []byte("v2"), time.Minute))

	current = current.Add(2 * time.Minute)
	assert.True(t, s.SetIfAbsent(context.Background(), "k1", []byte("v2"), time.Minute))
}

func TestSet_FailureIsBestEffort(t *testing.T) {
	m := &mockRedis{setErr: errors.New("readonly replica")}
	s := NewWithClient(m, log.NewNop())

	assert.False(t, s.Set(context.Background(), "k1", []byte("v1"), time.Minute))
}

func TestDisconnected_AllOpsNoOp(t *testing.T) {
	m := &mockRedis{pingErr: errors.New("down")}
	s := NewWithClient(m, log.NewNop())
	require.False(t, s.Connected(context.Background()))

	_, ok := s.Get(context.Background(), "k")
	assert.False(t, ok)
	assert.False(t, s.Set(context.Background(), "k", nil, time.Minute))
	assert.False(t, s.Delete(context.Background(), "k"))
	assert.Zero(t, s.DeleteMatching(context.Background(), "*"))

	// Only the ping reached the client.
	assert.Zero(t, m.getCalls)
	assert.Zero(t, m.setCalls)
	assert.Zero(t, m.delCalls)
}

func TestReconnectsAfterOutage(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := &mockRedis{getErr: errors.New("connection refused")}
	s := NewWithClient(m, log.NewNop())
	s.now = func() time.Time { return current }

	// One failed read disconnects the store.
	_, ok := s.Get(context.Background(), "k1")
	require.False(t, ok)
	require.Equal(t, 1, m.getCalls)

	// Redis comes back, but inside the re-probe interval operations still
	// short-circuit without touching the client.
	m.getErr = nil
	m.getResult = map[string]string{"k1": "v1"}
	_, ok = s.Get(context.Background(), "k1")
	assert.False(t, ok)
	assert.Equal(t, 1, m.getCalls)
	assert.Zero(t, m.pingCalls)

	// Once the interval elapses the next operation pays for a ping and
	// caching resumes, with no Connected() call involved.
	current = current.Add(reprobeInterval + time.Second)
	val, ok := s.Get(context.Background(), "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), val)
	assert.Equal(t, 1, m.pingCalls)
}

func TestReprobeFailureStaysDisconnected(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := &mockRedis{getErr: errors.New("connection refused"), pingErr: errors.New("still down")}
	s := NewWithClient(m, log.NewNop())
	s.now = func() time.Time { return current }

	_, _ = s.Get(context.Background(), "k1")

	current = current.Add(reprobeInterval + time.Second)
	_, ok := s.Get(context.Background(), "k1")
	assert.False(t, ok)
	assert.Equal(t, 1, m.pingCalls)

	// The failed probe re-arms the interval; the next operation does not
	// ping again immediately.
	_, _ = s.Get(context.Background(), "k1")
	assert.Equal(t, 1, m.pingCalls)
}

func TestSetIfAbsent(t *testing.T) {
	m := &mockRedis{getResult: map[string]string{"existing": "v"}}
	s := NewWithClient(m, log.NewNop())

	assert.True(t, s.SetIfAbsent(context.Background(), "fresh", []byte("v"), time.Minute))
	assert.False(t, s.SetIfAbsent(context.Background(), "existing", []byte("v"), time.Minute))
}

func TestDeleteMatching(t *testing.T) {
	m := &mockRedis{keysResult: []string{"problems:a", "problems:b"}}
	s := NewWithClient(m, log.NewNop())

	n := s.DeleteMatching(context.Background(), "problems:*")
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"problems:a", "problems:b"}, m.lastDel)
}

func TestDeleteMatching_NoMatches(t *testing.T) {
	m := &mockRedis{}
	s := NewWithClient(m, log.NewNop())

	assert.Zero(t, s.DeleteMatching(context.Background(), "none:*"))
	assert.Zero(t, m.delCalls)
}
