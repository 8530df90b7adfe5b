package domain

import "time"

// TargetStatus tracks a prospect through the outreach lifecycle.
type TargetStatus string

const (
	TargetNew         TargetStatus = "new"
	TargetQueued      TargetStatus = "queued"
	TargetSent        TargetStatus = "sent"
	TargetReplied     TargetStatus = "replied"
	TargetBounced     TargetStatus = "bounced"
	TargetOptedOut    TargetStatus = "opted_out"
	TargetQualified   TargetStatus = "qualified"
	TargetNeedsAnswer TargetStatus = "needs_answer"
	TargetSnoozed     TargetStatus = "snoozed"
	TargetClosed      TargetStatus = "closed"
)

// targetGraph is the allowed status transition graph. A target is never
// contacted again once opted out; opted_out and closed are terminal.
var targetGraph = map[TargetStatus][]TargetStatus{
	TargetNew:         {TargetQueued, TargetOptedOut, TargetClosed},
	TargetQueued:      {TargetSent, TargetBounced, TargetOptedOut, TargetClosed},
	TargetSent:        {TargetSent, TargetReplied, TargetBounced, TargetOptedOut, TargetQualified, TargetNeedsAnswer, TargetSnoozed, TargetClosed},
	TargetReplied:     {TargetQualified, TargetNeedsAnswer, TargetSnoozed, TargetOptedOut, TargetClosed},
	TargetBounced:     {TargetClosed},
	TargetSnoozed:     {TargetSent, TargetReplied, TargetQualified, TargetNeedsAnswer, TargetOptedOut, TargetClosed},
	TargetNeedsAnswer: {TargetQualified, TargetSnoozed, TargetOptedOut, TargetClosed},
	TargetQualified:   {TargetClosed},
	TargetOptedOut:    {},
	TargetClosed:      {},
}

// CanTransition reports whether a target may move from one status to another.
func CanTransition(from, to TargetStatus) bool {
	for _, s := range targetGraph[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a target status permits no further outreach.
// Replied-family statuses are included: once a human answers, automation
// stops touching the target.
func (s TargetStatus) IsTerminal() bool {
	switch s {
	case TargetOptedOut, TargetBounced, TargetQualified, TargetClosed,
		TargetReplied, TargetNeedsAnswer:
		return true
	case TargetNew, TargetQueued, TargetSent, TargetSnoozed:
		return false
	}
	return false
}

// Target is a prospect discovered through enrichment. Targets are never
// hard-deleted; abandoned ones are closed.
type Target struct {
	ID            string       `json:"id" db:"id"`
	CompanyName   string       `json:"company_name" db:"company_name"`
	WebsiteDomain string       `json:"website_domain" db:"website_domain"`
	City          string       `json:"city,omitempty" db:"city"`
	State         string       `json:"state,omitempty" db:"state"`
	FirstName     string       `json:"first_name,omitempty" db:"first_name"`
	LastName      string       `json:"last_name,omitempty" db:"last_name"`
	ContactEmail  string       `json:"contact_email" db:"contact_email"`
	ContactRole   string       `json:"contact_role" db:"contact_role"`
	Source        string       `json:"source" db:"source"`
	Notes         string       `json:"notes,omitempty" db:"notes"`
	Status        TargetStatus `json:"status" db:"status"`

	DraftVariant string `json:"draft_variant,omitempty" db:"draft_variant"`
	DraftSubject string `json:"draft_subject,omitempty" db:"draft_subject"`
	DraftBody    string `json:"draft_body,omitempty" db:"draft_body"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
