package domain

import "time"

// ClientStatus is the billing/operational state of a reputation client.
type ClientStatus string

const (
	ClientActive   ClientStatus = "active"
	ClientPaused   ClientStatus = "paused"
	ClientCanceled ClientStatus = "canceled"
)

// Client is a business whose review presence we manage.
type Client struct {
	ID           string       `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Email        string       `json:"email" db:"email"`
	Plan         string       `json:"plan" db:"plan"`
	Status       ClientStatus `json:"status" db:"status"`
	RefreshToken string       `json:"-" db:"refresh_token"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
}

// Location is one review-platform location belonging to a client.
// ResourceName looks like "accounts/{id}/locations/{id}".
type Location struct {
	ID           string    `json:"id" db:"id"`
	ClientID     string    `json:"client_id" db:"client_id"`
	ResourceName string    `json:"resource_name" db:"resource_name"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ReviewStatus tracks a review through the drafting/approval/posting flow.
type ReviewStatus string

const (
	ReviewNew           ReviewStatus = "new"
	ReviewDrafted       ReviewStatus = "drafted"
	ReviewNeedsApproval ReviewStatus = "needs_approval"
	ReviewApproved      ReviewStatus = "approved"
	ReviewPosted        ReviewStatus = "posted"
	ReviewSkipped       ReviewStatus = "skipped"
	ReviewError         ReviewStatus = "error"
)

// Review is a third-party review ingested from the platform, keyed by the
// platform's unique resource name so re-ingestion is idempotent.
type Review struct {
	ID           string            `json:"id" db:"id"`
	ClientID     string            `json:"client_id" db:"client_id"`
	LocationID   string            `json:"location_id" db:"location_id"`
	ResourceName string            `json:"resource_name" db:"resource_name"`
	ReviewerName string            `json:"reviewer_name" db:"reviewer_name"`
	Rating       int               `json:"rating" db:"rating"`
	Comment      string            `json:"comment" db:"comment"`
	ReviewTime   time.Time         `json:"review_time" db:"review_time"`
	HasReply     bool              `json:"has_reply" db:"has_reply"`
	ReplyText    string            `json:"reply_text" db:"reply_text"`
	Status       ReviewStatus      `json:"status" db:"status"`
	Meta         map[string]string `json:"meta,omitempty" db:"meta"`
	CreatedAt    time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at" db:"updated_at"`
}

// DraftStatus is the lifecycle of a generated reply draft.
type DraftStatus string

const (
	DraftDrafted       DraftStatus = "drafted"
	DraftNeedsApproval DraftStatus = "needs_approval"
	DraftApproved      DraftStatus = "approved"
	DraftPosted        DraftStatus = "posted"
	DraftRejected      DraftStatus = "rejected"
)

// ReplyDraft is a generated public reply awaiting approval or posting.
// Ratings of 3 stars or below must carry a non-empty ApprovedBy/ApprovedAt
// before any post attempt.
type ReplyDraft struct {
	ID         string            `json:"id" db:"id"`
	ReviewID   string            `json:"review_id" db:"review_id"`
	ClientID   string            `json:"client_id" db:"client_id"`
	Text       string            `json:"draft_text" db:"draft_text"`
	Status     DraftStatus       `json:"status" db:"status"`
	ApprovedBy string            `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt time.Time         `json:"approved_at,omitempty" db:"approved_at"`
	Meta       map[string]string `json:"meta,omitempty" db:"meta"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// Approved reports whether the draft carries a complete approval record.
func (d *ReplyDraft) Approved() bool {
	return d.Status == DraftApproved && d.ApprovedBy != "" && !d.ApprovedAt.IsZero()
}

// WeeklyReport is a per-client weekly reputation summary.
type WeeklyReport struct {
	ID        string    `json:"id" db:"id"`
	ClientID  string    `json:"client_id" db:"client_id"`
	WeekStart time.Time `json:"week_start" db:"week_start"`
	WeekEnd   time.Time `json:"week_end" db:"week_end"`
	Summary   string    `json:"summary_md" db:"summary_md"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
