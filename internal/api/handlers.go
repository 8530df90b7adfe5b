package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/service/alerts"
	"github.com/tensormd/repops/internal/service/reputation"
)

func (s *Server) handleSearchEnrich(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyName string `json:"company_name"`
		Domain      string `json:"domain"`
		Limit       int    `json:"limit"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 25
	}

	shells, err := s.deps.Outbound.SearchShells(r.Context(), req.CompanyName, req.Domain, req.Limit)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	result, err := s.deps.Outbound.EnrichAndInsert(r.Context(), shells)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"shells": len(shells),
		"result": result,
	})
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit int `json:"limit"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 25
	}

	result, err := s.deps.Outbound.DraftQueued(r.Context(), req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Outbound.SendDailyCap(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAutopilotRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Autopilot.RunDueTasks(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	decision, err := s.deps.Deliverability.Recompute(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hours int `json:"hours"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}

	until, err := s.deps.Deliverability.Pause(r.Context(), time.Duration(req.Hours)*time.Hour)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"paused_until": until})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Deliverability.Resume(r.Context()); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleThrottleStatus(w http.ResponseWriter, r *http.Request) {
	paused, until, err := s.deps.Deliverability.Paused(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendCap, err := s.deps.Deliverability.CurrentSendCap(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	warmup, err := s.deps.Deliverability.WarmupCap(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"paused":       paused,
		"paused_until": until,
		"send_cap":     sendCap,
		"warmup_cap":   warmup,
	})
}

func (s *Server) handleInboxProcess(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Inbox.Process(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleInboundWebhook accepts reply messages pushed by a mail relay and
// runs them through the same classify-and-route pipeline as a mailbox poll.
func (s *Server) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []domain.InboundMessage `json:"messages"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(req.Messages) == 0 {
		respondError(w, http.StatusBadRequest, "no messages")
		return
	}

	stats, err := s.deps.Inbox.ProcessBatch(r.Context(), req.Messages)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Reputation.IngestReviews(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReputationDraft(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Batch int `json:"batch"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	result, err := s.deps.Reputation.DraftNewReviews(r.Context(), req.Batch)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleAutopost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Batch int `json:"batch"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	result, err := s.deps.Reputation.PostAutopost(r.Context(), req.Batch)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Reputation.WeeklyReport(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleApproveDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	var req struct {
		ApprovedBy string `json:"approved_by"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.ApprovedBy == "" {
		respondError(w, http.StatusBadRequest, "approved_by is required")
		return
	}

	if err := s.deps.Reputation.ApproveDraft(r.Context(), draftID, req.ApprovedBy); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleRejectDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := s.deps.Reputation.RejectDraft(r.Context(), draftID, req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) handlePostDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")
	if err := s.deps.Reputation.PostDraft(r.Context(), draftID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "posted"})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	open, err := s.deps.Alerts.Open(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"alerts": open})
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Alerts.Ack(r.Context(), chi.URLParam(r, "alertID")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "acked"})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Alerts.Resolve(r.Context(), chi.URLParam(r, "alertID")); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleListSuppression(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := s.deps.Suppression.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleSuppress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmailOrDomain string `json:"email_or_domain"`
		Reason        string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.EmailOrDomain == "" {
		respondError(w, http.StatusBadRequest, "email_or_domain is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	if err := s.deps.Suppression.Suppress(r.Context(), req.EmailOrDomain, req.Reason); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "suppressed"})
}

// respondServiceError maps not-found sentinels to 404 and everything else
// to 500.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reputation.ErrDraftNotFound), errors.Is(err, alerts.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, reputation.ErrDraftNotApproved):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
