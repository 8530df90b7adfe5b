package domain

import "time"

// AlertSeverity orders operator alerts by urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarn     AlertSeverity = "warn"
	SeverityError    AlertSeverity = "error"
	SeverityCritical AlertSeverity = "critical"
)

// AlertKind names the failure class that produced an alert.
type AlertKind string

const (
	AlertReviewAuth     AlertKind = "review_auth"
	AlertReviewQuota    AlertKind = "review_quota"
	AlertReviewVerify   AlertKind = "review_verification"
	AlertLLMDraft       AlertKind = "llm_draft"
	AlertPipeline       AlertKind = "pipeline"
	AlertDeliverability AlertKind = "deliverability"
)

// AlertStatus is the operator-facing lifecycle of an alert.
type AlertStatus string

const (
	AlertOpen     AlertStatus = "open"
	AlertAcked    AlertStatus = "acked"
	AlertResolved AlertStatus = "resolved"
)

// Alert is a deduplicated operator alert. An identical open alert (same
// kind, client, location, and message) is coalesced by bumping its count
// rather than inserting a duplicate.
type Alert struct {
	ID         string            `json:"id" db:"id"`
	Severity   AlertSeverity     `json:"severity" db:"severity"`
	Kind       AlertKind         `json:"kind" db:"kind"`
	ClientID   string            `json:"client_id,omitempty" db:"client_id"`
	LocationID string            `json:"location_id,omitempty" db:"location_id"`
	Message    string            `json:"message" db:"message"`
	Count      int               `json:"count" db:"count"`
	Meta       map[string]string `json:"meta,omitempty" db:"meta"`
	Status     AlertStatus       `json:"status" db:"status"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}
