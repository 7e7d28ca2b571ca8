package session

import "time"

// Topic is the conversation's current subject area.
type Topic string

const (
	// TopicNone means no topic has been established yet.
	TopicNone Topic = "none"

	// TopicMonitoring is set when the conversation turns to live
	// operational data.
	TopicMonitoring Topic = "monitoring"

	// TopicIncidents is set when the conversation turns to an incident
	// report.
	TopicIncidents Topic = "incidents"
)

// Urgency grades an incident report. Levels are ordered; within one scan an
// urgency is never downgraded.
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyElevated
	UrgencyHigh
)

// String implements Stringer for logging and formatting.
func (u Urgency) String() string {
	switch u {
	case UrgencyHigh:
		return "high"
	case UrgencyElevated:
		return "elevated"
	default:
		return "normal"
	}
}

// MarshalText serializes the urgency by name so session JSON stays readable.
func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText parses an urgency name; unknown names fall back to normal.
func (u *Urgency) UnmarshalText(text []byte) error {
	switch string(text) {
	case "high":
		*u = UrgencyHigh
	case "elevated":
		*u = UrgencyElevated
	default:
		*u = UrgencyNormal
	}
	return nil
}

// DomainContext captures what an incident report mentioned: which known
// subsystems and how urgent it sounded.
type DomainContext struct {
	Subsystems []string `json:"subsystems,omitempty"`
	Urgency    Urgency  `json:"urgency"`
}

// Context is the rolling conversational context accumulated per session.
type Context struct {
	CurrentTopic  Topic          `json:"currentTopic"`
	RecentQueries []string       `json:"recentQueries,omitempty"`
	DomainContext *DomainContext `json:"domainContext,omitempty"`
}

// Exchange is the final message/response pair of a turn. The response is
// stored truncated; full responses are never persisted in the session.
type Exchange struct {
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the accumulated state of one conversation, keyed by an opaque
// identifier. Owned exclusively by Store; mutate only through its methods.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	Context      Context   `json:"context"`
	LastExchange *Exchange `json:"lastExchange,omitempty"`
}

// Stats is the derived read-only view of a session.
type Stats struct {
	MessageCount int           `json:"messageCount"`
	Age          time.Duration `json:"age"`
	CurrentTopic Topic         `json:"currentTopic"`
}
