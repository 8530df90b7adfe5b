// Package suppression maintains the permanent opt-out registry consulted by
// every contact point. Entries are email addresses or bare domains; once
// written they block all future inserts and sends forever.
package suppression

import (
	"context"
	"fmt"
	"log"

	"github.com/tensormd/repops/internal/domain"
)

// Repository is the persistence contract for opt-out entries.
type Repository interface {
	// Exists reports whether any of the given keys is registered.
	Exists(ctx context.Context, keys ...string) (bool, error)
	// Upsert registers a key; registering an existing key is a no-op.
	Upsert(ctx context.Context, entry *domain.OptOutEntry) error
	// List returns all entries (newest first), for operator review.
	List(ctx context.Context, limit, offset int) ([]domain.OptOutEntry, error)
}

// Service answers suppression queries and records opt-outs.
type Service struct {
	repo Repository
}

// NewService creates a suppression service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IsSuppressed reports whether the email or its domain is opted out. The
// domain argument may be empty, in which case it is derived from the email.
func (s *Service) IsSuppressed(ctx context.Context, email, dom string) (bool, error) {
	email = NormalizeEmail(email)
	if dom == "" {
		dom = EmailDomain(email)
	} else {
		dom = NormalizeDomain(dom)
	}

	keys := make([]string, 0, 2)
	if email != "" {
		keys = append(keys, email)
	}
	if dom != "" {
		keys = append(keys, dom)
	}
	if len(keys) == 0 {
		return false, nil
	}
	return s.repo.Exists(ctx, keys...)
}

// Suppress permanently registers an email or domain. Idempotent.
func (s *Service) Suppress(ctx context.Context, emailOrDomain, reason string) error {
	key := NormalizeEmail(emailOrDomain)
	if key == "" {
		return nil
	}
	if err := s.repo.Upsert(ctx, &domain.OptOutEntry{EmailOrDomain: key, Reason: reason}); err != nil {
		return fmt.Errorf("suppress %s: %w", key, err)
	}
	log.Printf("[suppression] registered %s (%s)", key, reason)
	return nil
}

// List returns registry entries for operator review, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.OptOutEntry, error) {
	return s.repo.List(ctx, limit, offset)
}

// SuppressEmailAndDomain registers both the address and its domain, the
// treatment an explicit opt-out reply gets.
func (s *Service) SuppressEmailAndDomain(ctx context.Context, email, reason string) error {
	email = NormalizeEmail(email)
	if err := s.Suppress(ctx, email, reason); err != nil {
		return err
	}
	if dom := EmailDomain(email); dom != "" {
		return s.Suppress(ctx, dom, reason+"_domain")
	}
	return nil
}
