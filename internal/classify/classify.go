// Package classify maps free-text operator messages to a fixed set of
// intents.
//
// Classification is deliberately rule-based: an ordered table of
// (intent, predicate) pairs evaluated first-match-wins over the lower-cased
// message. Live-data intent outranks conversational phrasing even when both
// markers co-occur, because live data is the system's primary value. The
// table keeps the priority order auditable and testable in isolation.
package classify

import "strings"

// Intent is the classified purpose of an inbound message.
type Intent int

const (
	// IntentHelp is the default when no other rule matches.
	IntentHelp Intent = iota

	// IntentLiveQuery asks for live data from the metrics/incident API.
	IntentLiveQuery

	// IntentModelChat is a conversational or explanatory request for the
	// language-model backend.
	IntentModelChat

	// IntentKnowledge asks for troubleshooting methodology from the static
	// knowledge base.
	IntentKnowledge
)

// String implements Stringer for logging.
func (i Intent) String() string {
	switch i {
	case IntentLiveQuery:
		return "live_query"
	case IntentModelChat:
		return "model_chat"
	case IntentKnowledge:
		return "knowledge"
	default:
		return "help"
	}
}

// liveKeywords mark messages about live operational data.
var liveKeywords = []string{
	"dql",
	"problem",
	"entities",
	"monitored",
	"logs",
	"metric",
	"vulnerabilit",
	"timeseries",
}

// chatKeywords mark explanatory or conversational requests.
var chatKeywords = []string{
	"explain",
	"how do",
	"what is",
	"what are",
	"help me",
}

// knowledgeKeywords mark troubleshooting-methodology requests.
var knowledgeKeywords = []string{
	"troubleshoot",
	"investigate",
	"correlate",
	"methodology",
	"root cause",
}

// incidentKeywords mark incident reports. Not an intent of their own; the
// session store uses them for topic tracking.
var incidentKeywords = []string{
	"incident",
	"outage",
	"down",
	"critical",
	"urgent",
	"alert",
	"issue",
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// rule pairs an intent with its predicate. Rules are evaluated in order;
// the first match wins.
type rule struct {
	intent Intent
	match  func(string) bool
}

var rules = []rule{
	{IntentLiveQuery, func(t string) bool { return containsAny(t, liveKeywords) }},
	{IntentModelChat, func(t string) bool {
		return containsAny(t, chatKeywords) || strings.HasPrefix(t, "can you")
	}},
	{IntentKnowledge, func(t string) bool { return containsAny(t, knowledgeKeywords) }},
	{IntentHelp, func(t string) bool { return strings.Contains(t, "help") }},
}

// Classify returns exactly one intent for the message. It never fails;
// unmatched messages fall through to IntentHelp.
func Classify(message string) Intent {
	text := strings.ToLower(strings.TrimSpace(message))
	for _, r := range rules {
		if r.match(text) {
			return r.intent
		}
	}
	return IntentHelp
}

// IsLiveQuery reports whether the message carries live-data keywords.
// Exposed for session topic tracking.
func IsLiveQuery(message string) bool {
	return containsAny(strings.ToLower(message), liveKeywords)
}

// IsIncidentReport reports whether the message carries incident keywords.
// Exposed for session topic tracking.
func IsIncidentReport(message string) bool {
	return containsAny(strings.ToLower(message), incidentKeywords)
}
