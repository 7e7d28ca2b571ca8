package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opschat/opschat/internal/cache"
	"github.com/opschat/opschat/internal/log"
)

// fakeRedis is a map-backed stand-in for the Redis client, serializing
// concurrent writes to the same key the way the real store does.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	down bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) SetEx(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewBoolResult(false, errors.New("connection refused"))
	}
	if _, exists := f.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = string(value.([]byte))
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Keys(_ context.Context, _ string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(nil, nil)
}

func (f *fakeRedis) Ping(_ context.Context) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	return redis.NewStatusResult("PONG", nil)
}

func newTestStore(t *testing.T) (*Store, *fakeRedis) {
	t.Helper()
	f := newFakeRedis()
	c := cache.NewWithClient(f, log.NewNop())
	return NewStore(c, 24*time.Hour, log.NewNop()), f
}

func TestGet_CreatesAndPersists(t *testing.T) {
	store, f := newTestStore(t)

	sess := store.Get(context.Background(), "s1")
	require.NotNil(t, sess)
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, TopicNone, sess.Context.CurrentTopic)
	assert.Zero(t, sess.MessageCount)

	f.mu.Lock()
	_, persisted := f.data["session:s1"]
	f.mu.Unlock()
	assert.True(t, persisted, "creation must persist immediately")

	again := store.Get(context.Background(), "s1")
	assert.True(t, sess.CreatedAt.Equal(again.CreatedAt))
}

func TestGet_ConcurrentCreatesShareCreatedAt(t *testing.T) {
	store, _ := newTestStore(t)

	const callers = 16
	results := make([]*Session, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = store.Get(context.Background(), "new-id")
		}()
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.True(t, results[0].CreatedAt.Equal(results[i].CreatedAt),
			"caller %d observed a different CreatedAt", i)
	}
}

func TestRecordExchange_CountsAndTruncates(t *testing.T) {
	store, _ := newTestStore(t)

	long := strings.Repeat("x", 500)
	sess := store.RecordExchange(context.Background(), "s1", "hello", long)

	assert.Equal(t, 1, sess.MessageCount)
	require.NotNil(t, sess.LastExchange)
	assert.Equal(t, "hello", sess.LastExchange.Message)
	assert.Len(t, []rune(sess.LastExchange.Response), maxStoredResponse)
	assert.False(t, sess.UpdatedAt.Before(sess.CreatedAt))

	sess = store.RecordExchange(context.Background(), "s1", "again", "short")
	assert.Equal(t, 2, sess.MessageCount)
	assert.Equal(t, "short", sess.LastExchange.Response)
}

func TestRecordExchange_RecentQueriesFIFO(t *testing.T) {
	store, _ := newTestStore(t)

	for i := 1; i <= 7; i++ {
		store.RecordExchange(context.Background(), "s1",
			fmt.Sprintf("show problems batch %d", i), "ok")
	}

	sess := store.Get(context.Background(), "s1")
	assert.Equal(t, TopicMonitoring, sess.Context.CurrentTopic)
	require.Len(t, sess.Context.RecentQueries, maxRecentQueries)

	// Oldest two evicted; the remaining five are in insertion order.
	assert.Equal(t, "show problems batch 3", sess.Context.RecentQueries[0])
	assert.Equal(t, "show problems batch 7", sess.Context.RecentQueries[4])
}

func TestRecordExchange_IncidentContext(t *testing.T) {
	store, _ := newTestStore(t)

	sess := store.RecordExchange(context.Background(), "s1",
		"urgent: the database and the gateway are acting up", "ack")

	assert.Equal(t, TopicIncidents, sess.Context.CurrentTopic)
	require.NotNil(t, sess.Context.DomainContext)
	assert.ElementsMatch(t, []string{"database", "gateway"}, sess.Context.DomainContext.Subsystems)
	assert.Equal(t, UrgencyElevated, sess.Context.DomainContext.Urgency)
}

func TestRecordExchange_NeutralMessageLeavesContext(t *testing.T) {
	store, _ := newTestStore(t)

	store.RecordExchange(context.Background(), "s1", "show problems now", "ok")
	sess := store.RecordExchange(context.Background(), "s1", "thanks", "welcome")

	assert.Equal(t, TopicMonitoring, sess.Context.CurrentTopic)
	assert.Len(t, sess.Context.RecentQueries, 1)
}

func TestScanIncident_UrgencyMonotone(t *testing.T) {
	// A later lower-urgency keyword must not downgrade high urgency set
	// earlier in the same scan.
	dc := scanIncident("critical outage, also a minor issue with the cache")
	assert.Equal(t, UrgencyHigh, dc.Urgency)

	dc = scanIncident("the frontend is down and there is an urgent ticket")
	assert.Equal(t, UrgencyHigh, dc.Urgency)

	dc = scanIncident("small issue with the queue")
	assert.Equal(t, UrgencyElevated, dc.Urgency)

	dc = scanIncident("incident report with no signal words")
	assert.Equal(t, UrgencyNormal, dc.Urgency)
}

func TestStats(t *testing.T) {
	store, _ := newTestStore(t)

	store.RecordExchange(context.Background(), "s1", "show problems", "ok")
	stats := store.Stats(context.Background(), "s1")

	assert.Equal(t, 1, stats.MessageCount)
	assert.Equal(t, TopicMonitoring, stats.CurrentTopic)
	assert.GreaterOrEqual(t, stats.Age, time.Duration(0))
}

func TestStore_DegradesWithoutCache(t *testing.T) {
	f := newFakeRedis()
	f.down = true
	c := cache.NewWithClient(f, log.NewNop())
	c.Connected(context.Background()) // observe the outage
	store := NewStore(c, 24*time.Hour, log.NewNop())

	// Sessions are ephemeral but the call path still works.
	sess := store.RecordExchange(context.Background(), "s1", "show problems", "ok")
	require.NotNil(t, sess)
	assert.Equal(t, 1, sess.MessageCount)
}

func TestSession_RoundTripsThroughJSON(t *testing.T) {
	store, _ := newTestStore(t)

	store.RecordExchange(context.Background(), "s1",
		"critical: database down", "escalating")
	sess := store.Get(context.Background(), "s1")

	require.NotNil(t, sess.Context.DomainContext)
	assert.Equal(t, UrgencyHigh, sess.Context.DomainContext.Urgency)
	assert.Equal(t, TopicIncidents, sess.Context.CurrentTopic)
	require.NotNil(t, sess.LastExchange)
	assert.Equal(t, "escalating", sess.LastExchange.Response)
}
