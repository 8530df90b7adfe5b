// Package mailer abstracts email submission behind a typed-outcome
// transport. Callers never inspect provider errors: every send resolves to
// Ok, SoftBounce, HardBounce, or TransientError, and the pipeline reacts to
// the class alone.
package mailer

import "context"

// OutcomeStatus classifies the result of a send attempt.
type OutcomeStatus string

const (
	SendOK             OutcomeStatus = "ok"
	SendSoftBounce     OutcomeStatus = "soft_bounce"
	SendHardBounce     OutcomeStatus = "hard_bounce"
	SendTransientError OutcomeStatus = "transient_error"
)

// Outcome is the typed result of a send attempt. Code carries the SMTP
// reply code when one was observed; Reason is a short operator-facing string.
type Outcome struct {
	Status OutcomeStatus
	Code   int
	Reason string
}

// OK reports whether the message was accepted for delivery.
func (o Outcome) OK() bool { return o.Status == SendOK }

// Bounced reports whether the failure counts as a bounce for rate purposes.
func (o Outcome) Bounced() bool {
	return o.Status == SendSoftBounce || o.Status == SendHardBounce
}

// Message is a fully-resolved outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Transport submits email. Implementations return an error only for
// programmer/configuration mistakes; delivery failures come back as a
// non-OK Outcome.
type Transport interface {
	Send(ctx context.Context, msg Message) (Outcome, error)
}
