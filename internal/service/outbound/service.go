// Package outbound orchestrates the four-stage prospecting pipeline:
// search shells, enrich and insert under the enrichment cap, draft copy,
// and send under the dynamic daily cap.
package outbound

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/apollo"
	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/mailer"
	"github.com/tensormd/repops/internal/suppression"
)

// Stage results carry a reason when a cap stopped work early.
const (
	ReasonEnrichCapReached = "enrich cap reached"
	ReasonSendCapReached   = "send cap reached"
)

// consecutive send failures that abort the stage for the day
const sendCircuitBreaker = 3

// Repository persists targets and the append-only event log.
type Repository interface {
	InsertTarget(ctx context.Context, t *domain.Target) error
	// HasTarget reports whether any target already matches the email or the
	// domain; one contact per company.
	HasTarget(ctx context.Context, email, websiteDomain string) (bool, error)
	TargetsByStatus(ctx context.Context, status domain.TargetStatus, limit int) ([]domain.Target, error)
	StoreDraft(ctx context.Context, targetID, variant, subject, body string) error
	MarkStatus(ctx context.Context, targetID string, status domain.TargetStatus) error
	LogEvent(ctx context.Context, e *domain.Event) error
	CountEventsToday(ctx context.Context, t domain.EventType) (int, error)
}

// Directory is the prospect data provider: zero-cost search plus the
// credit-spending bulk enrichment.
type Directory interface {
	Search(ctx context.Context, q apollo.SearchQuery) ([]domain.Shell, error)
	BulkEnrich(ctx context.Context, personIDs []string) ([]domain.EnrichedContact, int, error)
}

// Suppressor answers whether an email or domain is on the opt-out registry.
type Suppressor interface {
	IsSuppressed(ctx context.Context, email, dom string) (bool, error)
}

// CapSource exposes the cap the send stage must honor right now.
type CapSource interface {
	CurrentSendCap(ctx context.Context) (int, error)
}

// Scheduler is notified after each successful initial send so follow-ups
// get scheduled.
type Scheduler interface {
	OnInitialSent(ctx context.Context, targetID string) error
}

// EnrichResult summarizes one enrich-and-insert run.
type EnrichResult struct {
	Enriched int    `json:"enriched"`
	Inserted int    `json:"inserted"`
	Cap      int    `json:"cap"`
	Reason   string `json:"reason,omitempty"`
}

// DraftResult summarizes one drafting run.
type DraftResult struct {
	Drafted int `json:"drafted"`
}

// SendResult summarizes one send run.
type SendResult struct {
	Sent    int    `json:"sent"`
	Bounces int    `json:"bounces"`
	Cap     int    `json:"cap"`
	Reason  string `json:"reason,omitempty"`
}

// Service runs the outbound pipeline stages. Each stage is independently
// triggerable and safe to re-run; daily caps are enforced from the event log.
type Service struct {
	repo        Repository
	directory   Directory
	suppressor  Suppressor
	caps        CapSource
	transport   mailer.Transport
	scheduler   Scheduler
	enrichCap   int
	physAddress string
	now         func() time.Time
}

// New builds the pipeline service. scheduler may be nil when follow-up
// automation is disabled.
func New(repo Repository, directory Directory, suppressor Suppressor, caps CapSource, transport mailer.Transport, scheduler Scheduler, enrichCap int, physAddress string) *Service {
	return &Service{
		repo:        repo,
		directory:   directory,
		suppressor:  suppressor,
		caps:        caps,
		transport:   transport,
		scheduler:   scheduler,
		enrichCap:   enrichCap,
		physAddress: physAddress,
		now:         time.Now,
	}
}

// SearchShells runs the zero-cost people search. Nothing is persisted; the
// shells feed EnrichAndInsert.
func (s *Service) SearchShells(ctx context.Context, companyName, dom string, limit int) ([]domain.Shell, error) {
	q := apollo.SearchQuery{
		OrgName: companyName,
		Titles:  apollo.TitleFilters,
		Limit:   limit,
	}
	if dom != "" {
		q.OrgDomains = []string{suppression.NormalizeDomain(dom)}
	}

	shells, err := s.directory.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("people search: %w", err)
	}
	if limit > 0 && len(shells) > limit {
		shells = shells[:limit]
	}
	return shells, nil
}

// EnrichAndInsert spends enrichment credits on shells up to today's
// remaining cap and inserts the resulting contacts as new targets. Invalid,
// suppressed, and duplicate contacts are skipped silently.
func (s *Service) EnrichAndInsert(ctx context.Context, shells []domain.Shell) (EnrichResult, error) {
	res := EnrichResult{Cap: s.enrichCap}

	enrichedToday, err := s.repo.CountEventsToday(ctx, domain.EventEnrich)
	if err != nil {
		return res, fmt.Errorf("counting today's enrichments: %w", err)
	}
	remaining := s.enrichCap - enrichedToday
	if remaining <= 0 {
		res.Reason = ReasonEnrichCapReached
		return res, nil
	}
	if len(shells) > remaining {
		shells = shells[:remaining]
	}

	ids := make([]string, 0, len(shells))
	for _, sh := range shells {
		if sh.PersonID != "" {
			ids = append(ids, sh.PersonID)
		}
	}
	if len(ids) == 0 {
		return res, nil
	}

	contacts, attempted, err := s.directory.BulkEnrich(ctx, ids)
	if err != nil {
		return res, fmt.Errorf("bulk enrichment: %w", err)
	}
	res.Enriched = attempted

	for _, c := range contacts {
		email := suppression.NormalizeEmail(c.Email)
		if !suppression.IsValidBusinessEmail(email) {
			continue
		}
		dom := suppression.NormalizeDomain(c.OrgDomain)
		if dom == "" {
			dom = suppression.EmailDomain(email)
		}
		if dom == "" {
			continue
		}

		suppressed, err := s.suppressor.IsSuppressed(ctx, email, dom)
		if err != nil {
			return res, fmt.Errorf("suppression check for %s: %w", email, err)
		}
		if suppressed {
			continue
		}

		exists, err := s.repo.HasTarget(ctx, email, dom)
		if err != nil {
			return res, fmt.Errorf("target dedupe for %s: %w", email, err)
		}
		if exists {
			continue
		}

		now := s.now().UTC()
		company := c.OrgName
		if company == "" {
			company = "Unknown"
		}
		target := &domain.Target{
			ID:            uuid.NewString(),
			CompanyName:   company,
			WebsiteDomain: dom,
			City:          c.City,
			State:         c.State,
			FirstName:     c.FirstName,
			LastName:      c.LastName,
			ContactEmail:  email,
			ContactRole:   "owner",
			Source:        "apollo",
			Notes:         strings.TrimSpace("Apollo: " + c.Title),
			Status:        domain.TargetNew,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.InsertTarget(ctx, target); err != nil {
			return res, fmt.Errorf("inserting target for %s: %w", email, err)
		}
		if err := s.logEvent(ctx, target.ID, domain.EventEnrich, map[string]string{
			"person_id": c.PersonID,
			"title":     c.Title,
		}); err != nil {
			return res, err
		}
		res.Inserted++
	}

	log.Printf("[outbound] enrich run: attempted=%d inserted=%d cap=%d", res.Enriched, res.Inserted, s.enrichCap)
	return res, nil
}

// DraftQueued renders copy for targets still in status new, rotating the
// variant round-robin, and moves them to queued.
func (s *Service) DraftQueued(ctx context.Context, limit int) (DraftResult, error) {
	var res DraftResult

	targets, err := s.repo.TargetsByStatus(ctx, domain.TargetNew, limit)
	if err != nil {
		return res, fmt.Errorf("fetching new targets: %w", err)
	}

	for i, t := range targets {
		variant := pickVariant(i)
		subject, body, err := renderDraft(variant, t.CompanyName, t.FirstName, "", s.physAddress)
		if err != nil {
			return res, fmt.Errorf("drafting target %s: %w", t.ID, err)
		}

		if err := s.repo.StoreDraft(ctx, t.ID, variant, subject, body); err != nil {
			return res, fmt.Errorf("storing draft for target %s: %w", t.ID, err)
		}
		if err := s.repo.MarkStatus(ctx, t.ID, domain.TargetQueued); err != nil {
			return res, fmt.Errorf("queueing target %s: %w", t.ID, err)
		}
		if err := s.logEvent(ctx, t.ID, domain.EventQueued, map[string]string{
			"variant": variant,
			"subject": subject,
		}); err != nil {
			return res, err
		}
		res.Drafted++
	}
	return res, nil
}

// SendDailyCap sends queued drafts up to today's remaining dynamic cap.
// Suppression is re-checked per target immediately before submission; three
// consecutive failures abort the stage for the day.
func (s *Service) SendDailyCap(ctx context.Context) (SendResult, error) {
	sendCap, err := s.caps.CurrentSendCap(ctx)
	if err != nil {
		return SendResult{}, fmt.Errorf("reading send cap: %w", err)
	}
	res := SendResult{Cap: sendCap}

	sentToday, err := s.repo.CountEventsToday(ctx, domain.EventSent)
	if err != nil {
		return res, fmt.Errorf("counting today's sends: %w", err)
	}
	remaining := sendCap - sentToday
	if remaining <= 0 {
		res.Reason = ReasonSendCapReached
		return res, nil
	}

	batch, err := s.repo.TargetsByStatus(ctx, domain.TargetQueued, remaining)
	if err != nil {
		return res, fmt.Errorf("fetching queued drafts: %w", err)
	}

	consecutive := 0
	for _, t := range batch {
		email := suppression.NormalizeEmail(t.ContactEmail)
		dom := suppression.NormalizeDomain(t.WebsiteDomain)
		if dom == "" {
			dom = suppression.EmailDomain(email)
		}

		// Final opt-out guard before anything leaves the system.
		suppressed, err := s.suppressor.IsSuppressed(ctx, email, dom)
		if err != nil {
			return res, fmt.Errorf("suppression check for %s: %w", email, err)
		}
		if suppressed {
			if err := s.repo.MarkStatus(ctx, t.ID, domain.TargetOptedOut); err != nil {
				return res, fmt.Errorf("opting out target %s: %w", t.ID, err)
			}
			if err := s.logEvent(ctx, t.ID, domain.EventOptOut, map[string]string{"auto": "true"}); err != nil {
				return res, err
			}
			continue
		}

		outcome, err := s.transport.Send(ctx, mailer.Message{
			To:      email,
			Subject: t.DraftSubject,
			Body:    t.DraftBody,
		})
		if err != nil {
			return res, fmt.Errorf("transport failure: %w", err)
		}

		if outcome.OK() {
			if err := s.repo.MarkStatus(ctx, t.ID, domain.TargetSent); err != nil {
				return res, fmt.Errorf("marking target %s sent: %w", t.ID, err)
			}
			if err := s.logEvent(ctx, t.ID, domain.EventSent, map[string]string{"subject": t.DraftSubject}); err != nil {
				return res, err
			}
			if s.scheduler != nil {
				if err := s.scheduler.OnInitialSent(ctx, t.ID); err != nil {
					log.Printf("[outbound] follow-up scheduling failed for target %s: %v", t.ID, err)
				}
			}
			res.Sent++
			consecutive = 0
			continue
		}

		res.Bounces++
		consecutive++
		if err := s.repo.MarkStatus(ctx, t.ID, domain.TargetBounced); err != nil {
			return res, fmt.Errorf("marking target %s bounced: %w", t.ID, err)
		}
		if err := s.logEvent(ctx, t.ID, domain.EventBounce, map[string]string{
			"class":  string(outcome.Status),
			"reason": outcome.Reason,
		}); err != nil {
			return res, err
		}

		if consecutive >= sendCircuitBreaker {
			log.Printf("[outbound] %d consecutive send failures, stopping for the day", consecutive)
			break
		}
	}

	log.Printf("[outbound] send run: sent=%d bounces=%d cap=%d", res.Sent, res.Bounces, sendCap)
	return res, nil
}

func (s *Service) logEvent(ctx context.Context, targetID string, t domain.EventType, meta map[string]string) error {
	ev := &domain.Event{
		ID:        uuid.NewString(),
		TargetID:  targetID,
		Type:      t,
		Meta:      meta,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.LogEvent(ctx, ev); err != nil {
		return fmt.Errorf("logging %s event for target %s: %w", t, targetID, err)
	}
	return nil
}
