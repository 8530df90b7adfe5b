// Package alerts records operator alerts with dedupe and optionally
// notifies by email. Alerting never blocks the pipeline that raised the
// alert: failures here are logged and swallowed.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/mailer"
)

// ErrAlertNotFound is returned when an ack/resolve targets an unknown alert.
var ErrAlertNotFound = errors.New("alert not found")

// Repository persists alerts.
type Repository interface {
	// FindOpen returns the open alert matching the dedupe key
	// (kind, client, location, message), or nil when none exists.
	FindOpen(ctx context.Context, kind domain.AlertKind, clientID, locationID, message string) (*domain.Alert, error)
	Insert(ctx context.Context, a *domain.Alert) error
	// Touch bumps the count and updated-at of an existing open alert.
	Touch(ctx context.Context, id string, count int, at time.Time) error
	SetStatus(ctx context.Context, id string, status domain.AlertStatus, at time.Time) (bool, error)
	ListOpen(ctx context.Context) ([]domain.Alert, error)
}

// Service raises, acknowledges, and resolves operator alerts.
type Service struct {
	repo        Repository
	transport   mailer.Transport
	notifyEmail string
	now         func() time.Time
}

// New builds the alert service. transport may be nil; alerts are then
// recorded but not emailed.
func New(repo Repository, transport mailer.Transport, notifyEmail string) *Service {
	return &Service{
		repo:        repo,
		transport:   transport,
		notifyEmail: notifyEmail,
		now:         time.Now,
	}
}

// Raise records an alert, coalescing with an identical open one. A repeat
// bumps the count instead of inserting a new row and is not re-emailed.
func (s *Service) Raise(ctx context.Context, severity domain.AlertSeverity, kind domain.AlertKind, clientID, locationID, message string, meta map[string]string) {
	now := s.now().UTC()

	existing, err := s.repo.FindOpen(ctx, kind, clientID, locationID, message)
	if err != nil {
		log.Printf("[alerts] dedupe lookup failed: %v (kind=%s message=%q)", err, kind, message)
		return
	}
	if existing != nil {
		if err := s.repo.Touch(ctx, existing.ID, existing.Count+1, now); err != nil {
			log.Printf("[alerts] failed to bump alert %s: %v", existing.ID, err)
		}
		return
	}

	alert := &domain.Alert{
		ID:         uuid.NewString(),
		Severity:   severity,
		Kind:       kind,
		ClientID:   clientID,
		LocationID: locationID,
		Message:    message,
		Count:      1,
		Meta:       meta,
		Status:     domain.AlertOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, alert); err != nil {
		log.Printf("[alerts] failed to record alert: %v (kind=%s message=%q)", err, kind, message)
		return
	}
	log.Printf("[alerts] raised %s/%s: %s", severity, kind, message)

	s.notify(ctx, alert)
}

// Ack marks an alert acknowledged.
func (s *Service) Ack(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, domain.AlertAcked)
}

// Resolve closes an alert.
func (s *Service) Resolve(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, domain.AlertResolved)
}

func (s *Service) setStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	ok, err := s.repo.SetStatus(ctx, id, status, s.now().UTC())
	if err != nil {
		return fmt.Errorf("updating alert %s: %w", id, err)
	}
	if !ok {
		return ErrAlertNotFound
	}
	return nil
}

// Open lists open alerts for the ops surface.
func (s *Service) Open(ctx context.Context) ([]domain.Alert, error) {
	return s.repo.ListOpen(ctx)
}

func (s *Service) notify(ctx context.Context, a *domain.Alert) {
	if s.transport == nil || s.notifyEmail == "" {
		return
	}
	// Only warn and above is worth an operator email.
	if a.Severity == domain.SeverityInfo {
		return
	}

	subject := fmt.Sprintf("[%s] %s alert", a.Severity, a.Kind)
	body := fmt.Sprintf("Alert: %s\nKind: %s\nSeverity: %s\n", a.Message, a.Kind, a.Severity)
	if a.ClientID != "" {
		body += fmt.Sprintf("Client: %s\n", a.ClientID)
	}
	if a.LocationID != "" {
		body += fmt.Sprintf("Location: %s\n", a.LocationID)
	}
	body += fmt.Sprintf("Raised: %s\n", a.CreatedAt.Format(time.RFC3339))

	outcome, err := s.transport.Send(ctx, mailer.Message{
		To:      s.notifyEmail,
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		log.Printf("[alerts] notification send error: %v (subject: %s)", err, subject)
		return
	}
	if !outcome.OK() {
		log.Printf("[alerts] notification not delivered: %s %s (subject: %s)", outcome.Status, outcome.Reason, subject)
	}
}
