package domain

import "time"

// EventType enumerates the pipeline and reply events. The event log is the
// exclusive input to daily cap and rate computations, so new kinds must be
// added here rather than invented as free-form strings.
type EventType string

const (
	EventEnrich    EventType = "enrich"
	EventQueued    EventType = "queued"
	EventSent      EventType = "sent"
	EventBounce    EventType = "bounce"
	EventOptOut    EventType = "optout"
	EventReply     EventType = "reply"
	EventReplySent EventType = "reply_sent"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventEnrich, EventQueued, EventSent, EventBounce, EventOptOut,
		EventReply, EventReplySent:
		return true
	}
	return false
}

// Event is one append-only record in the pipeline event log. Events are
// immutable once written.
type Event struct {
	ID        string            `json:"id" db:"id"`
	TargetID  string            `json:"target_id" db:"target_id"`
	Type      EventType         `json:"event_type" db:"event_type"`
	Meta      map[string]string `json:"meta,omitempty" db:"meta"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// OptOutEntry is one row in the permanent suppression registry. The key is
// either a full email address or a bare domain; once written it blocks all
// future inserts and sends matching it.
type OptOutEntry struct {
	ID            string    `json:"id" db:"id"`
	EmailOrDomain string    `json:"email_or_domain" db:"email_or_domain"`
	Reason        string    `json:"reason" db:"reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
