// Package reputation ingests third-party reviews, drafts public replies
// with an LLM, and posts them back to the platform behind an approval
// gate: low-star reviews never post without an explicit human approval.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/config"
	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/gbp"
	"github.com/tensormd/repops/internal/llm"
	"github.com/tensormd/repops/internal/pkg/backoff"
)

var (
	// ErrDraftNotFound is returned when an approve/reject/post targets an
	// unknown draft.
	ErrDraftNotFound = errors.New("draft not found")
	// ErrDraftNotApproved is returned when a manual post targets a draft
	// without a complete approval record.
	ErrDraftNotApproved = errors.New("draft not approved")
)

// postFailLimit caps how much of a post error we keep in draft meta.
const postFailLimit = 300

// ReviewAPI is the slice of the review platform client we use.
type ReviewAPI interface {
	ListReviews(ctx context.Context, locationName string) ([]gbp.Review, error)
	PostReply(ctx context.Context, reviewName, text string) error
}

// ClientFactory builds a review-platform client bound to one tenant's
// refresh token.
type ClientFactory func(ctx context.Context, refreshToken string) ReviewAPI

// GBPFactory returns a ClientFactory backed by the real platform client.
func GBPFactory(cfg config.ReviewsConfig) ClientFactory {
	return func(ctx context.Context, refreshToken string) ReviewAPI {
		return gbp.NewClient(ctx, cfg, refreshToken)
	}
}

// Repository persists clients, locations, reviews, drafts, and reports.
type Repository interface {
	ActiveClients(ctx context.Context) ([]domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	ActiveLocations(ctx context.Context, clientID string) ([]domain.Location, error)

	// ReviewByResourceName returns nil when the review is unknown.
	ReviewByResourceName(ctx context.Context, resourceName string) (*domain.Review, error)
	InsertReview(ctx context.Context, r *domain.Review) error
	UpdateReview(ctx context.Context, r *domain.Review) error
	GetReview(ctx context.Context, id string) (*domain.Review, error)
	// NewReviews returns reviews in status new without a platform reply,
	// oldest first.
	NewReviews(ctx context.Context, limit int) ([]domain.Review, error)
	// ReviewsInWindow returns a client's reviews with review time in
	// [start, end).
	ReviewsInWindow(ctx context.Context, clientID string, start, end time.Time) ([]domain.Review, error)

	// DraftByReviewID returns nil when the review has no draft yet.
	DraftByReviewID(ctx context.Context, reviewID string) (*domain.ReplyDraft, error)
	GetDraft(ctx context.Context, id string) (*domain.ReplyDraft, error)
	InsertDraft(ctx context.Context, d *domain.ReplyDraft) error
	UpdateDraft(ctx context.Context, d *domain.ReplyDraft) error
	// ApprovedDrafts returns drafts in status approved, oldest first.
	ApprovedDrafts(ctx context.Context, limit int) ([]domain.ReplyDraft, error)

	InsertWeeklyReport(ctx context.Context, r *domain.WeeklyReport) error
}

// Alerter raises deduplicated operator alerts. Raising never fails.
type Alerter interface {
	Raise(ctx context.Context, severity domain.AlertSeverity, kind domain.AlertKind, clientID, locationID, message string, meta map[string]string)
}

// IngestResult summarizes one ingest run.
type IngestResult struct {
	Clients  int `json:"clients"`
	APICalls int `json:"api_calls"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Errors   int `json:"errors"`
}

// DraftResult summarizes one drafting run.
type DraftResult struct {
	Drafted      int `json:"drafted"`
	AutoApproved int `json:"auto_approved"`
	HeldForOK    int `json:"held_for_approval"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}

// PostResult summarizes one autopost run.
type PostResult struct {
	Posted  int `json:"posted"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// ReportResult summarizes a weekly report run.
type ReportResult struct {
	Reports int `json:"reports"`
}

// Service runs the review reputation pipeline for all active clients.
type Service struct {
	repo     Repository
	platform ClientFactory
	drafter  llm.Drafter
	alerter  Alerter
	cfg      config.ReputationConfig

	apiRetry backoff.Policy
	llmRetry backoff.Policy
	now      func() time.Time
}

// New builds the reputation service.
func New(repo Repository, platform ClientFactory, drafter llm.Drafter, alerter Alerter, cfg config.ReputationConfig) *Service {
	return &Service{
		repo:     repo,
		platform: platform,
		drafter:  drafter,
		alerter:  alerter,
		cfg:      cfg,
		apiRetry: backoff.Policy{MaxAttempts: 4, Base: 800 * time.Millisecond, Cap: 15 * time.Second},
		llmRetry: backoff.Policy{MaxAttempts: 3, Base: time.Second, Cap: 10 * time.Second},
		now:      time.Now,
	}
}

// IngestReviews pulls reviews for every active client location under the
// per-run call budgets and upserts them keyed by platform resource name.
// A platform error skips only the affected location.
func (s *Service) IngestReviews(ctx context.Context) (IngestResult, error) {
	var res IngestResult

	clients, err := s.repo.ActiveClients(ctx)
	if err != nil {
		return res, fmt.Errorf("list active clients: %w", err)
	}

	for _, client := range clients {
		if res.APICalls >= s.cfg.GlobalPerRun {
			log.Printf("[reputation] global call budget %d reached, stopping ingest", s.cfg.GlobalPerRun)
			break
		}
		if client.RefreshToken == "" {
			log.Printf("[reputation] client %s has no refresh token, skipping", client.ID)
			continue
		}
		res.Clients++

		api := s.platform(ctx, client.RefreshToken)
		locations, err := s.repo.ActiveLocations(ctx, client.ID)
		if err != nil {
			log.Printf("[reputation] list locations for client %s: %v", client.ID, err)
			res.Errors++
			continue
		}

		clientCalls := 0
		for _, loc := range locations {
			if res.APICalls >= s.cfg.GlobalPerRun || clientCalls >= s.cfg.PerClientPerRun {
				break
			}
			res.APICalls++
			clientCalls++

			var reviews []gbp.Review
			err := backoff.Retry(ctx, s.apiRetry, gbp.IsRetryable, func() error {
				var lerr error
				reviews, lerr = api.ListReviews(ctx, loc.ResourceName)
				return lerr
			})
			if err != nil {
				s.alertPlatformError(ctx, client.ID, loc.ID, "list reviews", err)
				res.Errors++
				continue
			}

			for i := range reviews {
				created, err := s.upsertReview(ctx, client.ID, loc.ID, reviews[i])
				if err != nil {
					log.Printf("[reputation] upsert review %s: %v", reviews[i].ResourceName, err)
					res.Errors++
					continue
				}
				if created {
					res.Created++
				} else {
					res.Updated++
				}
			}
		}
	}

	log.Printf("[reputation] ingest done: clients=%d calls=%d created=%d updated=%d errors=%d",
		res.Clients, res.APICalls, res.Created, res.Updated, res.Errors)
	return res, nil
}

// upsertReview inserts or refreshes one review. A review that arrives
// already carrying a platform reply is stored as posted.
func (s *Service) upsertReview(ctx context.Context, clientID, locationID string, rv gbp.Review) (bool, error) {
	now := s.now().UTC()

	existing, err := s.repo.ReviewByResourceName(ctx, rv.ResourceName)
	if err != nil {
		return false, err
	}

	if existing == nil {
		status := domain.ReviewNew
		if rv.HasReply {
			status = domain.ReviewPosted
		}
		r := &domain.Review{
			ID:           uuid.NewString(),
			ClientID:     clientID,
			LocationID:   locationID,
			ResourceName: rv.ResourceName,
			ReviewerName: rv.ReviewerName,
			Rating:       rv.Rating,
			Comment:      rv.Comment,
			ReviewTime:   rv.ReviewTime,
			HasReply:     rv.HasReply,
			ReplyText:    rv.ReplyText,
			Status:       status,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return true, s.repo.InsertReview(ctx, r)
	}

	existing.ReviewerName = rv.ReviewerName
	existing.Rating = rv.Rating
	existing.Comment = rv.Comment
	existing.ReviewTime = rv.ReviewTime
	if rv.HasReply {
		existing.HasReply = true
		existing.ReplyText = rv.ReplyText
		if existing.Status != domain.ReviewPosted {
			existing.Status = domain.ReviewPosted
		}
	}
	existing.UpdatedAt = now
	return false, s.repo.UpdateReview(ctx, existing)
}

// DraftNewReviews generates a reply draft for each unreplied new review.
// Drafts for reviews of 3 stars or below are held for human approval;
// 4-5 star drafts are auto-approved for the autopost lane.
func (s *Service) DraftNewReviews(ctx context.Context, batch int) (DraftResult, error) {
	var res DraftResult
	if batch <= 0 {
		batch = s.cfg.DraftBatch
	}

	reviews, err := s.repo.NewReviews(ctx, batch)
	if err != nil {
		return res, fmt.Errorf("list new reviews: %w", err)
	}

	for i := range reviews {
		review := reviews[i]

		existing, err := s.repo.DraftByReviewID(ctx, review.ID)
		if err != nil {
			log.Printf("[reputation] draft lookup for review %s: %v", review.ID, err)
			res.Errors++
			continue
		}
		if existing != nil {
			res.Skipped++
			continue
		}

		client, err := s.repo.GetClient(ctx, review.ClientID)
		if err != nil {
			log.Printf("[reputation] load client %s: %v", review.ClientID, err)
			res.Errors++
			continue
		}
		businessName := ""
		if client != nil {
			businessName = client.Name
		}

		var text string
		err = backoff.Retry(ctx, s.llmRetry, llm.IsRetryable, func() error {
			var derr error
			text, derr = s.drafter.DraftReply(ctx, llm.DraftRequest{
				BusinessName: businessName,
				ReviewerName: review.ReviewerName,
				Rating:       review.Rating,
				Comment:      review.Comment,
			})
			return derr
		})
		if err != nil {
			s.alerter.Raise(ctx, domain.SeverityWarn, domain.AlertLLMDraft, review.ClientID, review.LocationID,
				"reply drafting failed", map[string]string{"review_id": review.ID, "error": trim(err.Error(), postFailLimit)})
			review.Status = domain.ReviewError
			review.UpdatedAt = s.now().UTC()
			if uerr := s.repo.UpdateReview(ctx, &review); uerr != nil {
				log.Printf("[reputation] mark review %s error: %v", review.ID, uerr)
			}
			res.Errors++
			continue
		}

		now := s.now().UTC()
		draft := &domain.ReplyDraft{
			ID:        uuid.NewString(),
			ReviewID:  review.ID,
			ClientID:  review.ClientID,
			Text:      text,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if review.Rating <= 3 {
			draft.Status = domain.DraftNeedsApproval
			review.Status = domain.ReviewNeedsApproval
			res.HeldForOK++
		} else {
			draft.Status = domain.DraftApproved
			draft.ApprovedBy = "system"
			draft.ApprovedAt = now
			review.Status = domain.ReviewApproved
			res.AutoApproved++
		}

		if err := s.repo.InsertDraft(ctx, draft); err != nil {
			log.Printf("[reputation] insert draft for review %s: %v", review.ID, err)
			res.Errors++
			continue
		}
		review.UpdatedAt = now
		if err := s.repo.UpdateReview(ctx, &review); err != nil {
			log.Printf("[reputation] update review %s after draft: %v", review.ID, err)
			res.Errors++
			continue
		}
		res.Drafted++
	}

	log.Printf("[reputation] drafting done: drafted=%d auto=%d held=%d skipped=%d errors=%d",
		res.Drafted, res.AutoApproved, res.HeldForOK, res.Skipped, res.Errors)
	return res, nil
}

// PostAutopost posts approved drafts for 4-5 star reviews. Low-star
// drafts, even approved ones, only go out through PostDraft so a human
// is always in that loop. Posting is idempotent: a review that already
// carries a reply marks the draft posted without calling the platform.
func (s *Service) PostAutopost(ctx context.Context, batch int) (PostResult, error) {
	var res PostResult
	if batch <= 0 {
		batch = s.cfg.PostBatch
	}

	drafts, err := s.repo.ApprovedDrafts(ctx, batch)
	if err != nil {
		return res, fmt.Errorf("list approved drafts: %w", err)
	}

	for i := range drafts {
		draft := drafts[i]

		review, err := s.repo.GetReview(ctx, draft.ReviewID)
		if err != nil {
			log.Printf("[reputation] load review %s: %v", draft.ReviewID, err)
			res.Errors++
			continue
		}
		if review == nil {
			s.rejectOrphan(ctx, &draft, "missing_review")
			res.Errors++
			continue
		}

		client, err := s.repo.GetClient(ctx, draft.ClientID)
		if err != nil {
			log.Printf("[reputation] load client %s: %v", draft.ClientID, err)
			res.Errors++
			continue
		}
		if client == nil || client.RefreshToken == "" {
			s.rejectOrphan(ctx, &draft, "missing_client_credentials")
			res.Errors++
			continue
		}

		if review.HasReply || review.Status == domain.ReviewPosted {
			s.markPosted(ctx, &draft, review, false)
			res.Skipped++
			continue
		}
		if review.Rating < 4 {
			res.Skipped++
			continue
		}
		if !draft.Approved() {
			res.Skipped++
			continue
		}

		api := s.platform(ctx, client.RefreshToken)
		err = backoff.Retry(ctx, s.apiRetry, gbp.IsRetryable, func() error {
			return api.PostReply(ctx, review.ResourceName, draft.Text)
		})
		if err != nil {
			s.recordPostFailure(ctx, &draft, review, err)
			res.Errors++
			continue
		}

		s.markPosted(ctx, &draft, review, true)
		res.Posted++
	}

	log.Printf("[reputation] autopost done: posted=%d skipped=%d errors=%d", res.Posted, res.Skipped, res.Errors)
	return res, nil
}

// PostDraft posts one approved draft regardless of rating. This is the
// manual lane for human-approved low-star replies.
func (s *Service) PostDraft(ctx context.Context, draftID string) error {
	draft, err := s.repo.GetDraft(ctx, draftID)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if draft == nil {
		return ErrDraftNotFound
	}
	if draft.Status == domain.DraftPosted {
		return nil
	}
	if !draft.Approved() {
		return ErrDraftNotApproved
	}

	review, err := s.repo.GetReview(ctx, draft.ReviewID)
	if err != nil {
		return fmt.Errorf("load review: %w", err)
	}
	if review == nil {
		return fmt.Errorf("draft %s: review %s not found", draft.ID, draft.ReviewID)
	}
	if review.HasReply || review.Status == domain.ReviewPosted {
		s.markPosted(ctx, draft, review, false)
		return nil
	}

	client, err := s.repo.GetClient(ctx, draft.ClientID)
	if err != nil {
		return fmt.Errorf("load client: %w", err)
	}
	if client == nil || client.RefreshToken == "" {
		return fmt.Errorf("draft %s: client credentials missing", draft.ID)
	}

	api := s.platform(ctx, client.RefreshToken)
	err = backoff.Retry(ctx, s.apiRetry, gbp.IsRetryable, func() error {
		return api.PostReply(ctx, review.ResourceName, draft.Text)
	})
	if err != nil {
		s.recordPostFailure(ctx, draft, review, err)
		return fmt.Errorf("post reply: %w", err)
	}

	s.markPosted(ctx, draft, review, true)
	return nil
}

// ApproveDraft records a human approval, unlocking the draft for posting.
func (s *Service) ApproveDraft(ctx context.Context, draftID, approvedBy string) error {
	if approvedBy == "" {
		return errors.New("approver is required")
	}

	draft, err := s.repo.GetDraft(ctx, draftID)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if draft == nil {
		return ErrDraftNotFound
	}
	if draft.Status == domain.DraftPosted {
		return fmt.Errorf("draft %s already posted", draftID)
	}

	now := s.now().UTC()
	draft.Status = domain.DraftApproved
	draft.ApprovedBy = approvedBy
	draft.ApprovedAt = now
	draft.UpdatedAt = now
	if err := s.repo.UpdateDraft(ctx, draft); err != nil {
		return fmt.Errorf("update draft: %w", err)
	}

	review, err := s.repo.GetReview(ctx, draft.ReviewID)
	if err != nil || review == nil {
		log.Printf("[reputation] approve: review %s lookup: %v", draft.ReviewID, err)
		return nil
	}
	review.Status = domain.ReviewApproved
	review.UpdatedAt = now
	if err := s.repo.UpdateReview(ctx, review); err != nil {
		log.Printf("[reputation] approve: update review %s: %v", review.ID, err)
	}
	return nil
}

// RejectDraft discards a draft. The underlying review is marked skipped
// and will not be drafted again.
func (s *Service) RejectDraft(ctx context.Context, draftID, reason string) error {
	draft, err := s.repo.GetDraft(ctx, draftID)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if draft == nil {
		return ErrDraftNotFound
	}
	if draft.Status == domain.DraftPosted {
		return fmt.Errorf("draft %s already posted", draftID)
	}

	now := s.now().UTC()
	draft.Status = domain.DraftRejected
	if reason != "" {
		if draft.Meta == nil {
			draft.Meta = map[string]string{}
		}
		draft.Meta["reject_reason"] = trim(reason, postFailLimit)
	}
	draft.UpdatedAt = now
	if err := s.repo.UpdateDraft(ctx, draft); err != nil {
		return fmt.Errorf("update draft: %w", err)
	}

	review, err := s.repo.GetReview(ctx, draft.ReviewID)
	if err != nil || review == nil {
		log.Printf("[reputation] reject: review %s lookup: %v", draft.ReviewID, err)
		return nil
	}
	review.Status = domain.ReviewSkipped
	review.UpdatedAt = now
	if err := s.repo.UpdateReview(ctx, review); err != nil {
		log.Printf("[reputation] reject: update review %s: %v", review.ID, err)
	}
	return nil
}

// markPosted records a successful (or already-present) reply on both the
// draft and its review. posted is false on the idempotent skip path.
func (s *Service) markPosted(ctx context.Context, draft *domain.ReplyDraft, review *domain.Review, posted bool) {
	now := s.now().UTC()

	draft.Status = domain.DraftPosted
	delete(draft.Meta, "post_fail")
	draft.UpdatedAt = now
	if err := s.repo.UpdateDraft(ctx, draft); err != nil {
		log.Printf("[reputation] mark draft %s posted: %v", draft.ID, err)
	}

	review.Status = domain.ReviewPosted
	if posted {
		review.HasReply = true
		review.ReplyText = draft.Text
	}
	review.UpdatedAt = now
	if err := s.repo.UpdateReview(ctx, review); err != nil {
		log.Printf("[reputation] mark review %s posted: %v", review.ID, err)
	}
}

// recordPostFailure keeps the error on the draft for the next run and
// raises a classified alert. The draft stays approved so it is retried.
func (s *Service) recordPostFailure(ctx context.Context, draft *domain.ReplyDraft, review *domain.Review, err error) {
	if draft.Meta == nil {
		draft.Meta = map[string]string{}
	}
	draft.Meta["post_fail"] = trim(err.Error(), postFailLimit)
	draft.UpdatedAt = s.now().UTC()
	if uerr := s.repo.UpdateDraft(ctx, draft); uerr != nil {
		log.Printf("[reputation] record post failure on draft %s: %v", draft.ID, uerr)
	}
	s.alertPlatformError(ctx, draft.ClientID, review.LocationID, "post reply", err)
}

// alertPlatformError maps a platform error to the right alert class.
func (s *Service) alertPlatformError(ctx context.Context, clientID, locationID, op string, err error) {
	meta := map[string]string{"error": trim(err.Error(), postFailLimit)}
	msg := op + " failed"
	switch {
	case gbp.IsAuthError(err):
		s.alerter.Raise(ctx, domain.SeverityCritical, domain.AlertReviewAuth, clientID, locationID, msg+": access revoked", meta)
	case gbp.IsQuotaError(err):
		s.alerter.Raise(ctx, domain.SeverityWarn, domain.AlertReviewQuota, clientID, locationID, msg+": quota exhausted", meta)
	case gbp.IsVerificationError(err):
		s.alerter.Raise(ctx, domain.SeverityError, domain.AlertReviewVerify, clientID, locationID, msg+": location not verified", meta)
	default:
		s.alerter.Raise(ctx, domain.SeverityError, domain.AlertPipeline, clientID, locationID, msg, meta)
	}
}

// rejectOrphan retires a draft whose review or client is gone.
func (s *Service) rejectOrphan(ctx context.Context, draft *domain.ReplyDraft, reason string) {
	if draft.Meta == nil {
		draft.Meta = map[string]string{}
	}
	draft.Meta["reject_reason"] = reason
	draft.Status = domain.DraftRejected
	draft.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateDraft(ctx, draft); err != nil {
		log.Printf("[reputation] reject orphan draft %s: %v", draft.ID, err)
	}
}

func trim(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
