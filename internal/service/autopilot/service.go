// Package autopilot schedules and runs follow-up sends, enforcing the
// deliverability stop rule and routing classified replies to target
// statuses.
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/config"
	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/mailer"
	"github.com/tensormd/repops/internal/suppression"
)

// ErrTargetNotFound is returned when a reply routes to an unknown target.
var ErrTargetNotFound = errors.New("target not found")

// Run-stop reasons reported by RunDueTasks.
const (
	ReasonPaused         = "paused"
	ReasonRateStop       = "rate_stop"
	ReasonSendCapReached = "send cap reached"
)

const consecutiveFailureLimit = 3

// minRateSample is the fewest sends a day needs before bounce and opt-out
// percentages can trigger a rate stop.
const minRateSample = 20

// Repository persists targets, tasks, and events for the scheduler.
type Repository interface {
	GetTarget(ctx context.Context, id string) (*domain.Target, error)
	MarkStatus(ctx context.Context, targetID string, status domain.TargetStatus) error
	LogEvent(ctx context.Context, e *domain.Event) error
	CountEventsToday(ctx context.Context, t domain.EventType) (int, error)

	// HasTask reports whether any task (any status) of the given type exists
	// for the target; the initial-send hook uses it for idempotency.
	HasTask(ctx context.Context, targetID string, typ domain.TaskType) (bool, error)
	InsertTask(ctx context.Context, t *domain.AutopilotTask) error
	// DueTasks returns pending tasks with due_at <= now, oldest due first.
	DueTasks(ctx context.Context, now time.Time, limit int) ([]domain.AutopilotTask, error)
	SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error
	CancelPendingTasks(ctx context.Context, targetID string) error
}

// Throttle is the deliverability surface the scheduler consults.
type Throttle interface {
	Paused(ctx context.Context) (bool, time.Time, error)
	Pause(ctx context.Context, d time.Duration) (time.Time, error)
	CurrentSendCap(ctx context.Context) (int, error)
}

// RateSource reports today's outbound send outcomes.
type RateSource interface {
	RatesToday(ctx context.Context) (domain.DailyRates, error)
}

// Suppressor answers whether an email or domain is on the opt-out registry.
type Suppressor interface {
	IsSuppressed(ctx context.Context, email, dom string) (bool, error)
}

// RunResult summarizes one scheduler run.
type RunResult struct {
	Paused     bool              `json:"paused,omitempty"`
	PauseUntil time.Time         `json:"pause_until,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Sent       int               `json:"sent"`
	Skipped    int               `json:"skipped"`
	Rates      domain.DailyRates `json:"rates"`
}

// Service runs the follow-up scheduler.
type Service struct {
	repo       Repository
	throttle   Throttle
	rates      RateSource
	suppressor Suppressor
	transport  mailer.Transport
	cfg        config.AutopilotConfig
	now        func() time.Time
}

// New builds the scheduler service.
func New(repo Repository, throttle Throttle, rates RateSource, suppressor Suppressor, transport mailer.Transport, cfg config.AutopilotConfig) *Service {
	return &Service{
		repo:       repo,
		throttle:   throttle,
		rates:      rates,
		suppressor: suppressor,
		transport:  transport,
		cfg:        cfg,
		now:        time.Now,
	}
}

// OnInitialSent schedules the three follow-ups after a target's first send.
// Calling it again for the same target is a no-op.
func (s *Service) OnInitialSent(ctx context.Context, targetID string) error {
	exists, err := s.repo.HasTask(ctx, targetID, domain.TaskFollowup1)
	if err != nil {
		return fmt.Errorf("checking existing follow-ups for target %s: %w", targetID, err)
	}
	if exists {
		return nil
	}

	now := s.now().UTC()
	steps := []struct {
		typ  domain.TaskType
		days int
	}{
		{domain.TaskFollowup1, s.cfg.Followup1Days},
		{domain.TaskFollowup2, s.cfg.Followup2Days},
		{domain.TaskFollowup3, s.cfg.Followup3Days},
	}
	for _, step := range steps {
		task := &domain.AutopilotTask{
			ID:        uuid.NewString(),
			TargetID:  targetID,
			Type:      step.typ,
			DueAt:     now.AddDate(0, 0, step.days),
			Status:    domain.TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.InsertTask(ctx, task); err != nil {
			return fmt.Errorf("scheduling %s for target %s: %w", step.typ, targetID, err)
		}
	}
	return nil
}

// RunDueTasks executes due follow-ups under the pause window, the rate stop
// rule, and today's remaining send cap.
func (s *Service) RunDueTasks(ctx context.Context) (RunResult, error) {
	var res RunResult

	paused, until, err := s.throttle.Paused(ctx)
	if err != nil {
		return res, err
	}
	if paused {
		res.Paused = true
		res.PauseUntil = until
		res.Reason = ReasonPaused
		return res, nil
	}

	rates, err := s.rates.RatesToday(ctx)
	if err != nil {
		return res, fmt.Errorf("reading daily rates: %w", err)
	}
	res.Rates = rates

	// Enough volume to trust the rates and they are bad: pause and stop.
	if rates.Sent >= minRateSample && (rates.BouncePct > s.cfg.StopBouncePct || rates.OptOutPct > s.cfg.StopOptOutPct) {
		until, err := s.throttle.Pause(ctx, time.Duration(s.cfg.PauseHours)*time.Hour)
		if err != nil {
			return res, fmt.Errorf("setting rate-stop pause: %w", err)
		}
		res.Paused = true
		res.PauseUntil = until
		res.Reason = ReasonRateStop
		log.Printf("[autopilot] rate stop: sent=%d bounce=%.1f%% optout=%.1f%%, paused until %s",
			rates.Sent, rates.BouncePct, rates.OptOutPct, until.Format(time.RFC3339))
		return res, nil
	}

	sendCap, err := s.throttle.CurrentSendCap(ctx)
	if err != nil {
		return res, err
	}
	sentToday, err := s.repo.CountEventsToday(ctx, domain.EventSent)
	if err != nil {
		return res, fmt.Errorf("counting today's sends: %w", err)
	}
	remaining := sendCap - sentToday
	if remaining <= 0 {
		res.Reason = ReasonSendCapReached
		return res, nil
	}

	tasks, err := s.repo.DueTasks(ctx, s.now().UTC(), remaining)
	if err != nil {
		return res, fmt.Errorf("fetching due tasks: %w", err)
	}

	consecutive := 0
	for _, task := range tasks {
		target, err := s.repo.GetTarget(ctx, task.TargetID)
		if err != nil {
			return res, fmt.Errorf("loading target %s: %w", task.TargetID, err)
		}
		if target == nil {
			if err := s.repo.SetTaskStatus(ctx, task.ID, domain.TaskSkipped); err != nil {
				return res, err
			}
			res.Skipped++
			continue
		}

		if target.Status.IsTerminal() {
			if err := s.repo.SetTaskStatus(ctx, task.ID, domain.TaskCanceled); err != nil {
				return res, err
			}
			res.Skipped++
			continue
		}

		email := suppression.NormalizeEmail(target.ContactEmail)
		dom := suppression.NormalizeDomain(target.WebsiteDomain)
		if dom == "" {
			dom = suppression.EmailDomain(email)
		}
		suppressed, err := s.suppressor.IsSuppressed(ctx, email, dom)
		if err != nil {
			return res, fmt.Errorf("suppression check for %s: %w", email, err)
		}
		if suppressed {
			if err := s.repo.MarkStatus(ctx, target.ID, domain.TargetOptedOut); err != nil {
				return res, err
			}
			if err := s.repo.SetTaskStatus(ctx, task.ID, domain.TaskCanceled); err != nil {
				return res, err
			}
			res.Skipped++
			continue
		}

		subject, body, err := followupCopy(task.Type, target.CompanyName)
		if err != nil {
			return res, err
		}

		outcome, err := s.transport.Send(ctx, mailer.Message{To: email, Subject: subject, Body: body})
		if err != nil {
			return res, fmt.Errorf("transport failure: %w", err)
		}

		if outcome.OK() {
			if err := s.logEvent(ctx, target.ID, domain.EventSent, map[string]string{
				"autopilot": "true",
				"task":      string(task.Type),
			}); err != nil {
				return res, err
			}
			if err := s.repo.MarkStatus(ctx, target.ID, domain.TargetSent); err != nil {
				return res, err
			}
			if err := s.repo.SetTaskStatus(ctx, task.ID, domain.TaskDone); err != nil {
				return res, err
			}
			res.Sent++
			consecutive = 0
			continue
		}

		consecutive++
		if err := s.logEvent(ctx, target.ID, domain.EventBounce, map[string]string{
			"autopilot": "true",
			"task":      string(task.Type),
			"class":     string(outcome.Status),
			"reason":    outcome.Reason,
		}); err != nil {
			return res, err
		}
		if err := s.repo.MarkStatus(ctx, target.ID, domain.TargetBounced); err != nil {
			return res, err
		}
		if err := s.repo.SetTaskStatus(ctx, task.ID, domain.TaskDone); err != nil {
			return res, err
		}

		if consecutive >= consecutiveFailureLimit {
			log.Printf("[autopilot] %d consecutive send failures, stopping run", consecutive)
			break
		}
	}

	return res, nil
}

// RouteReply maps a classified reply to the target's next status. All
// pending follow-ups are canceled first; a "later" reply schedules one
// snooze follow-up.
func (s *Service) RouteReply(ctx context.Context, targetID string, c domain.Classification) error {
	target, err := s.repo.GetTarget(ctx, targetID)
	if err != nil {
		return fmt.Errorf("loading target %s: %w", targetID, err)
	}
	if target == nil {
		return ErrTargetNotFound
	}

	if err := s.repo.CancelPendingTasks(ctx, targetID); err != nil {
		return fmt.Errorf("canceling pending tasks for target %s: %w", targetID, err)
	}

	var status domain.TargetStatus
	switch c {
	case domain.ReplyYes:
		status = domain.TargetQualified
	case domain.ReplyQuestion:
		status = domain.TargetNeedsAnswer
	case domain.ReplyLater:
		status = domain.TargetSnoozed
	case domain.ReplyOptOut:
		status = domain.TargetOptedOut
	default:
		status = domain.TargetReplied
	}

	if err := s.repo.MarkStatus(ctx, targetID, status); err != nil {
		return fmt.Errorf("routing target %s to %s: %w", targetID, status, err)
	}

	if c == domain.ReplyLater {
		now := s.now().UTC()
		task := &domain.AutopilotTask{
			ID:        uuid.NewString(),
			TargetID:  targetID,
			Type:      domain.TaskSnoozeFollowup,
			DueAt:     now.AddDate(0, 0, s.cfg.SnoozeDays),
			Status:    domain.TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.InsertTask(ctx, task); err != nil {
			return fmt.Errorf("scheduling snooze follow-up for target %s: %w", targetID, err)
		}
	}

	log.Printf("[autopilot] reply %s routed target %s to %s", c, targetID, status)
	return nil
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
