// Package session manages per-conversation state on top of the cache.
//
// Sessions are created lazily on first reference and expire through the
// cache's TTL; nothing destroys them explicitly. Like the cache itself the
// store degrades when Redis is unreachable: callers then get ephemeral
// sessions that live only for the current call.
//
// Known limitation: two messages for the same session processed concurrently
// race on the final write (last writer wins). Chat traffic is naturally
// serialized per user, so no cross-request lock is taken.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/opschat/opschat/internal/cache"
	"github.com/opschat/opschat/internal/classify"
	"github.com/opschat/opschat/internal/log"
)

const (
	// keyPrefix namespaces session records in the shared key-value store.
	keyPrefix = "session:"

	// maxRecentQueries bounds the rolling live-query window, oldest evicted
	// first.
	maxRecentQueries = 5

	// maxStoredResponse bounds the truncated response copy kept in
	// LastExchange, in runes.
	maxStoredResponse = 200
)

// subsystemVocabulary is the fixed set of named subsystems recognized in
// incident reports.
var subsystemVocabulary = []string{
	"database",
	"cache",
	"queue",
	"gateway",
	"frontend",
	"backend",
	"network",
	"storage",
	"kubernetes",
	"load balancer",
}

// Store owns session persistence. Safe for concurrent use.
type Store struct {
	cache  *cache.Store
	ttl    time.Duration
	logger log.Logger
	now    func() time.Time
}

// NewStore creates a session store writing through the given cache with a
// session-scoped TTL (independent of, and much longer than, query-result
// TTLs).
func NewStore(c *cache.Store, ttl time.Duration, logger log.Logger) *Store {
	return &Store{
		cache:  c,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the session for id, creating and persisting a fresh one if
// none exists. Creation is atomic from the caller's perspective: concurrent
// gets for a new id all observe the same CreatedAt, and a partial session is
// never returned.
func (s *Store) Get(ctx context.Context, id string) *Session {
	key := keyPrefix + id

	if data, ok := s.cache.Get(ctx, key); ok {
		if sess := decode(data, s.logger); sess != nil {
			return sess
		}
	}

	now := s.now()
	fresh := &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Context:   Context{CurrentTopic: TopicNone},
	}

	data, err := json.Marshal(fresh)
	if err != nil {
		s.logger.Error("session marshal failed", "session_id", id, "error", err)
		return fresh
	}

	// SETNX settles races between concurrent creators: exactly one write
	// lands, and everyone re-reads the winner.
	if !s.cache.SetIfAbsent(ctx, key, data, s.ttl) {
		if existing, ok := s.cache.Get(ctx, key); ok {
			if sess := decode(existing, s.logger); sess != nil {
				return sess
			}
		}
		// Cache unreachable: hand out the ephemeral session.
		return fresh
	}

	s.logger.Debug("created session", "session_id", id)
	return fresh
}

// RecordExchange folds the final message/response pair of a turn into the
// session: bumps the message count, stores a truncated response copy, and
// conditionally updates the rolling context. Returns the updated session.
func (s *Store) RecordExchange(ctx context.Context, id, message, response string) *Session {
	sess := s.Get(ctx, id)
	now := s.now()

	sess.MessageCount++
	sess.UpdatedAt = now
	sess.LastExchange = &Exchange{
		Message:   message,
		Response:  truncate(response, maxStoredResponse),
		Timestamp: now,
	}

	switch {
	case classify.IsLiveQuery(message):
		sess.Context.CurrentTopic = TopicMonitoring
		sess.Context.RecentQueries = pushBounded(sess.Context.RecentQueries, message, maxRecentQueries)
	case classify.IsIncidentReport(message):
		sess.Context.CurrentTopic = TopicIncidents
		sess.Context.DomainContext = scanIncident(message)
	}

	s.persist(ctx, sess)
	return sess
}

// Stats derives the read-only session summary. No mutation.
func (s *Store) Stats(ctx context.Context, id string) Stats {
	sess := s.Get(ctx, id)
	return Stats{
		MessageCount: sess.MessageCount,
		Age:          s.now().Sub(sess.CreatedAt),
		CurrentTopic: sess.Context.CurrentTopic,
	}
}

// persist writes the session back with the session TTL. Best-effort like
// every cache write.
func (s *Store) persist(ctx context.Context, sess *Session) {
	data, err := json.Marshal(sess)
	if err != nil {
		s.logger.Error("session marshal failed", "session_id", sess.ID, "error", err)
		return
	}
	s.cache.Set(ctx, keyPrefix+sess.ID, data, s.ttl)
}

// decode unmarshals a stored session, returning nil on corrupt data so the
// caller recreates it.
func decode(data []byte, logger log.Logger) *Session {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		logger.Warn("discarding corrupt session record", "error", err)
		return nil
	}
	return &sess
}

// pushBounded appends an item keeping only the most recent limit entries,
// FIFO, insertion order preserved.
func pushBounded(items []string, item string, limit int) []string {
	items = append(items, item)
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items
}

// truncate bounds a string to n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// scanIncident scans an incident report for known subsystems and an urgency
// signal. Urgency is monotone within one scan: once a higher level is seen,
// later lower-urgency keywords do not downgrade it.
func scanIncident(message string) *DomainContext {
	text := strings.ToLower(message)

	dc := &DomainContext{Urgency: UrgencyNormal}
	for _, sub := range subsystemVocabulary {
		if strings.Contains(text, sub) {
			dc.Subsystems = append(dc.Subsystems, sub)
		}
	}

	levels := []struct {
		keyword string
		level   Urgency
	}{
		{"critical", UrgencyHigh},
		{"down", UrgencyHigh},
		{"urgent", UrgencyElevated},
		{"issue", UrgencyElevated},
	}
	for _, l := range levels {
		if strings.Contains(text, l.keyword) && l.level > dc.Urgency {
			dc.Urgency = l.level
		}
	}

	return dc
}
