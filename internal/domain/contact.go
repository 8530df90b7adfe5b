package domain

import "time"

// Shell is a partial contact identity returned by the zero-cost search call.
// It carries no verified email; enrichment resolves it into a contact.
type Shell struct {
	PersonID  string `json:"person_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Title     string `json:"title"`
	OrgName   string `json:"org_name"`
	OrgDomain string `json:"org_domain"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
}

// EnrichedContact is a shell resolved through the costed enrichment call,
// carrying a verified email address.
type EnrichedContact struct {
	PersonID  string `json:"person_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Title     string `json:"title"`
	OrgName   string `json:"org_name"`
	OrgDomain string `json:"org_domain"`
	Email     string `json:"email"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
}

// Classification is the deterministic label assigned to an inbound reply.
type Classification string

const (
	ReplyYes      Classification = "yes"
	ReplyQuestion Classification = "question"
	ReplyLater    Classification = "later"
	ReplyOptOut   Classification = "optout"
	ReplyUnknown  Classification = "unknown"
)

// InboundMessage is one message pulled from the reply mailbox. UID is the
// mailbox-scoped stable identifier used for idempotent processing.
type InboundMessage struct {
	UID     string `json:"uid"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html"`
}

// ProcessedMessage records an inbound UID that has already been handled.
// The marker is written before any side effect so reprocessing is a no-op.
type ProcessedMessage struct {
	ID             string         `json:"id" db:"id"`
	UID            string         `json:"uid" db:"uid"`
	FromEmail      string         `json:"from_email" db:"from_email"`
	Subject        string         `json:"subject" db:"subject"`
	Classification Classification `json:"classification" db:"classification"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}
