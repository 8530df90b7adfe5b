// Package api is the operator control surface: authenticated POST
// triggers for every batch job, plus approval and registry management
// endpoints. Run cadence belongs to the external scheduler; these
// handlers only fire one run each.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/pkg/distlock"
	"github.com/tensormd/repops/internal/service/autopilot"
	"github.com/tensormd/repops/internal/service/deliverability"
	"github.com/tensormd/repops/internal/service/inbox"
	"github.com/tensormd/repops/internal/service/outbound"
	"github.com/tensormd/repops/internal/service/reputation"
)

// OutboundService is the outreach pipeline surface the API exposes.
type OutboundService interface {
	SearchShells(ctx context.Context, companyName, dom string, limit int) ([]domain.Shell, error)
	EnrichAndInsert(ctx context.Context, shells []domain.Shell) (outbound.EnrichResult, error)
	DraftQueued(ctx context.Context, limit int) (outbound.DraftResult, error)
	SendDailyCap(ctx context.Context) (outbound.SendResult, error)
}

// AutopilotService runs due follow-up tasks.
type AutopilotService interface {
	RunDueTasks(ctx context.Context) (autopilot.RunResult, error)
}

// DeliverabilityService is the throttle control surface.
type DeliverabilityService interface {
	Recompute(ctx context.Context) (deliverability.Decision, error)
	Pause(ctx context.Context, d time.Duration) (time.Time, error)
	Resume(ctx context.Context) error
	Paused(ctx context.Context) (bool, time.Time, error)
	CurrentSendCap(ctx context.Context) (int, error)
	WarmupCap(ctx context.Context) (int, error)
}

// InboxService processes inbound replies.
type InboxService interface {
	Process(ctx context.Context) (inbox.Stats, error)
	ProcessBatch(ctx context.Context, msgs []domain.InboundMessage) (inbox.Stats, error)
}

// ReputationService is the review pipeline surface.
type ReputationService interface {
	IngestReviews(ctx context.Context) (reputation.IngestResult, error)
	DraftNewReviews(ctx context.Context, batch int) (reputation.DraftResult, error)
	PostAutopost(ctx context.Context, batch int) (reputation.PostResult, error)
	PostDraft(ctx context.Context, draftID string) error
	ApproveDraft(ctx context.Context, draftID, approvedBy string) error
	RejectDraft(ctx context.Context, draftID, reason string) error
	WeeklyReport(ctx context.Context) (reputation.ReportResult, error)
}

// AlertService exposes the operator alert queue.
type AlertService interface {
	Open(ctx context.Context) ([]domain.Alert, error)
	Ack(ctx context.Context, id string) error
	Resolve(ctx context.Context, id string) error
}

// SuppressionService manages the opt-out registry.
type SuppressionService interface {
	Suppress(ctx context.Context, emailOrDomain, reason string) error
	List(ctx context.Context, limit, offset int) ([]domain.OptOutEntry, error)
}

// Deps collects the services the server routes to.
type Deps struct {
	Outbound       OutboundService
	Autopilot      AutopilotService
	Deliverability DeliverabilityService
	Inbox          InboxService
	Reputation     ReputationService
	Alerts         AlertService
	Suppression    SuppressionService
	Locks          *distlock.Factory
}

// Server is the HTTP control surface.
type Server struct {
	deps     Deps
	opsToken string
	router   chi.Router
}

// NewServer wires the router. opsToken guards every /api route.
func NewServer(deps Deps, opsToken string) *Server {
	s := &Server{deps: deps, opsToken: opsToken}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireOpsToken)

		r.Route("/ops", func(r chi.Router) {
			r.Post("/outbound/search-enrich", s.locked("outbound_enrich", s.handleSearchEnrich))
			r.Post("/outbound/draft", s.locked("outbound_draft", s.handleDraft))
			r.Post("/outbound/send", s.locked("outbound_send", s.handleSend))

			r.Post("/autopilot/run", s.locked("autopilot_run", s.handleAutopilotRun))

			r.Post("/deliverability/recompute", s.locked("deliverability_recompute", s.handleRecompute))
			r.Post("/deliverability/pause", s.handlePause)
			r.Post("/deliverability/resume", s.handleResume)
			r.Get("/deliverability/status", s.handleThrottleStatus)

			r.Post("/inbox/process", s.locked("inbox_process", s.handleInboxProcess))

			r.Post("/reputation/ingest", s.locked("reputation_ingest", s.handleIngest))
			r.Post("/reputation/draft", s.locked("reputation_draft", s.handleReputationDraft))
			r.Post("/reputation/autopost", s.locked("reputation_autopost", s.handleAutopost))
			r.Post("/reputation/weekly-report", s.locked("reputation_weekly", s.handleWeeklyReport))
			r.Post("/reputation/drafts/{draftID}/approve", s.handleApproveDraft)
			r.Post("/reputation/drafts/{draftID}/reject", s.handleRejectDraft)
			r.Post("/reputation/drafts/{draftID}/post", s.handlePostDraft)

			r.Get("/alerts", s.handleListAlerts)
			r.Post("/alerts/{alertID}/ack", s.handleAckAlert)
			r.Post("/alerts/{alertID}/resolve", s.handleResolveAlert)

			r.Get("/suppression", s.handleListSuppression)
			r.Post("/suppression", s.handleSuppress)
		})

		r.Post("/inbound/messages", s.handleInboundWebhook)
	})

	s.router = r
	return s
}

// Handler returns the root http handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// locked wraps a trigger handler in the job's single-flight lock. A second
// concurrent trigger gets 409 instead of a duplicate run.
func (s *Server) locked(job string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Locks == nil {
			next(w, r)
			return
		}
		lock := s.deps.Locks.ForJob(job)
		ok, err := lock.Acquire(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "lock acquire failed")
			return
		}
		if !ok {
			respondError(w, http.StatusConflict, "job already running")
			return
		}
		defer lock.Release(r.Context())
		next(w, r)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeBody parses an optional JSON body; an empty body leaves dst as-is.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
