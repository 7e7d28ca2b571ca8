// Package orchestrator routes classified messages to backends, applying
// cache-first reads, credential-aware remote calls and an ordered fallback
// cascade (live, then model, then knowledge, then help).
//
// Every path, including the exhausted-fallback case, terminates in the
// formatter with a provenance tag. No backend failure ever reaches the
// caller as a raw error: a user-visible failure is a normal chat response,
// so conversational continuity survives backend outages.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/opschat/opschat/internal/cache"
	"github.com/opschat/opschat/internal/classify"
	"github.com/opschat/opschat/internal/knowledge"
	"github.com/opschat/opschat/internal/log"
	"github.com/opschat/opschat/internal/monitor"
	"github.com/opschat/opschat/internal/session"
)

const (
	// liveTimeRange is the relative range for problem listings.
	liveTimeRange = "2h"

	// livePageSize bounds problem listings.
	livePageSize = 10

	// maxKeyQueryLen bounds the message-derived part of live cache keys,
	// in runes.
	maxKeyQueryLen = 100
)

// monitorBackend is the live metrics/incident API surface the orchestrator
// needs. Consumer-defined for testability.
type monitorBackend interface {
	ListProblems(ctx context.Context, relativeTime string, pageSize int) (*monitor.ProblemFeed, error)
}

// modelBackend is the language-model surface the orchestrator needs.
type modelBackend interface {
	Chat(ctx context.Context, prompt string, extra map[string]string) (string, error)
}

// Orchestrator ties the classifier, cache, session store and backends
// together. Safe for concurrent use; per-session writes race last-writer-
// wins, which chat traffic tolerates.
type Orchestrator struct {
	cache     *cache.Store
	sessions  *session.Store
	monitor   monitorBackend // nil when the live backend is not configured
	model     modelBackend
	resultTTL time.Duration
	logger    log.Logger
	now       func() time.Time
}

// New creates an orchestrator. monitor may be nil; live queries then skip
// straight to the model fallback.
func New(c *cache.Store, sessions *session.Store, mon monitorBackend, mdl modelBackend, resultTTL time.Duration, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		cache:     c,
		sessions:  sessions,
		monitor:   mon,
		model:     mdl,
		resultTTL: resultTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleMessage is the sole entry point: classify, dispatch, format, and
// fold the exchange back into the session. Always returns a formatted
// response, never an error.
func (o *Orchestrator) HandleMessage(ctx context.Context, message, sessionID string) string {
	intent := classify.Classify(message)
	o.logger.Debug("classified message", "intent", intent, "session_id", sessionID)

	var text string
	var prov Provenance
	switch intent {
	case classify.IntentLiveQuery:
		text, prov = o.handleLiveQuery(ctx, message, sessionID)
	case classify.IntentModelChat:
		text, prov = o.handleModelChat(ctx, message, sessionID)
	case classify.IntentKnowledge:
		text, prov = o.handleKnowledge(message)
	default:
		text, prov = o.handleHelp()
	}

	if text == "" {
		// Exhausted cascade: still a formatted chat response with a
		// diagnostic, never a raw error.
		text = "All backends are currently unavailable. Live data, model analysis and knowledge lookups failed for this request; please retry shortly."
		prov = ProvenanceError
	}

	formatted := Format(text, prov, o.now())
	o.sessions.RecordExchange(ctx, sessionID, message, formatted)
	return formatted
}

// Session exposes read-only session access for the HTTP layer.
func (o *Orchestrator) Session(ctx context.Context, id string) *session.Session {
	return o.sessions.Get(ctx, id)
}

// SessionStats exposes derived session statistics for the HTTP layer.
func (o *Orchestrator) SessionStats(ctx context.Context, id string) session.Stats {
	return o.sessions.Stats(ctx, id)
}

// InvalidateCache removes cached results matching a glob pattern.
// Administrative surface, not on the hot path.
func (o *Orchestrator) InvalidateCache(ctx context.Context, pattern string) int {
	return o.cache.DeleteMatching(ctx, pattern)
}

// handleLiveQuery serves live operational data cache-first, enriches it
// with a best-effort model summary, and falls back to the model path when
// the live backend fails.
func (o *Orchestrator) handleLiveQuery(ctx context.Context, message, sessionID string) (string, Provenance) {
	key := cache.DeriveKey("live", normalizeQuery(message))

	if data, ok := o.cache.Get(ctx, key); ok {
		return string(data), ProvenanceCache
	}

	if o.monitor == nil {
		o.logger.Debug("live backend not configured, falling back to model")
		return o.handleModelChat(ctx, message, sessionID)
	}

	feed, err := o.monitor.ListProblems(ctx, liveTimeRange, livePageSize)
	if err != nil {
		o.logger.Warn("live query failed, falling back to model", "error", err)
		return o.handleModelChat(ctx, message, sessionID)
	}

	text := renderProblems(feed)

	// Secondary enrichment is best-effort: on failure the primary data
	// stands alone.
	if len(feed.Problems) > 0 {
		summary, err := o.model.Chat(ctx,
			"In two sentences, summarize the operational impact of these problems:\n"+text, nil)
		if err != nil {
			o.logger.Debug("enrichment failed, returning primary data", "error", err)
		} else {
			text += "\n\nAnalysis: " + summary
		}
	}

	// Live data ages quickly; short TTL.
	o.cache.Set(ctx, key, []byte(text), o.resultTTL)
	return text, ProvenanceLive
}

// handleModelChat calls the model with the session's rolling context and
// degrades to the knowledge base on failure.
func (o *Orchestrator) handleModelChat(ctx context.Context, message, sessionID string) (string, Provenance) {
	if o.model == nil {
		return o.handleKnowledge(message)
	}

	reply, err := o.model.Chat(ctx, message, o.sessionContext(ctx, sessionID))
	if err != nil {
		o.logger.Warn("model chat failed, falling back to knowledge base", "error", err)
		return o.handleKnowledge(message)
	}
	return reply, ProvenanceModel
}

// handleKnowledge serves canned guidance; it always succeeds.
func (o *Orchestrator) handleKnowledge(message string) (string, Provenance) {
	doc := knowledge.Lookup(message)
	return doc.Title + "\n\n" + doc.Body, ProvenanceKnowledge
}

// handleHelp returns the static capability summary.
func (o *Orchestrator) handleHelp() (string, Provenance) {
	var b strings.Builder
	b.WriteString("I can help with:\n")
	b.WriteString("- Live data: open problems, affected entities, metrics and vulnerabilities\n")
	b.WriteString("- Explanations: ask me to explain a concept or summarize a situation\n")
	b.WriteString("- Troubleshooting guides: ")
	b.WriteString(strings.Join(knowledge.Titles(), "; "))
	b.WriteString("\nJust describe what you need in plain language.")
	return b.String(), ProvenanceHelp
}

// sessionContext projects the session's rolling context into the extra
// record passed to the model.
func (o *Orchestrator) sessionContext(ctx context.Context, sessionID string) map[string]string {
	sess := o.sessions.Get(ctx, sessionID)

	extra := map[string]string{}
	if sess.Context.CurrentTopic != session.TopicNone {
		extra["topic"] = string(sess.Context.CurrentTopic)
	}
	if dc := sess.Context.DomainContext; dc != nil {
		extra["urgency"] = dc.Urgency.String()
		if len(dc.Subsystems) > 0 {
			extra["subsystems"] = strings.Join(dc.Subsystems, ", ")
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// normalizeQuery canonicalizes a message for key derivation: lower-cased,
// whitespace collapsed, bounded length.
func normalizeQuery(message string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(message)), " ")
	runes := []rune(normalized)
	if len(runes) > maxKeyQueryLen {
		normalized = string(runes[:maxKeyQueryLen])
	}
	return normalized
}
