// Package deliverability owns the send throttle: the warmup ramp, the
// dynamic daily cap, and the pause window. All state lives in one
// ThrottleState row that this service alone reads and writes.
package deliverability

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/tensormd/repops/internal/config"
	"github.com/tensormd/repops/internal/domain"
)

// Cap adjustment reasons reported by Recompute.
const (
	ReasonRateDown    = "rate_down"
	ReasonRateUp      = "rate_up"
	ReasonAlignToBase = "align_to_base"
	ReasonNoChange    = "no_change"
)

// minRateSample is the fewest sends a day needs before bounce and opt-out
// percentages are trusted for cap decisions.
const minRateSample = 20

// StateStore persists the single throttle state row.
type StateStore interface {
	Get(ctx context.Context) (domain.ThrottleState, error)
	Save(ctx context.Context, st domain.ThrottleState) error
}

// RateSource reports today's outbound send outcomes.
type RateSource interface {
	RatesToday(ctx context.Context) (domain.DailyRates, error)
}

// Decision is the outcome of one dynamic-cap recompute.
type Decision struct {
	Base   int               `json:"base"`
	Prev   int               `json:"prev"`
	New    int               `json:"new"`
	Reason string            `json:"reason"`
	Rates  domain.DailyRates `json:"rates"`
}

// Service computes send caps from warmup progress and observed rates.
type Service struct {
	store         StateStore
	rates         RateSource
	baseCap       int
	stopBouncePct float64
	stopOptOutPct float64
	cfg           config.DeliverabilityConfig
	now           func() time.Time
}

// New builds the throttle service. baseCap is the configured full daily
// send cap that warmup ramps toward; the stop thresholds are shared with
// the autopilot stop rule so both react to the same rates.
func New(store StateStore, rates RateSource, baseCap int, cfg config.DeliverabilityConfig, stopBouncePct, stopOptOutPct float64) *Service {
	return &Service{
		store:         store,
		rates:         rates,
		baseCap:       baseCap,
		stopBouncePct: stopBouncePct,
		stopOptOutPct: stopOptOutPct,
		cfg:           cfg,
		now:           time.Now,
	}
}

// WarmupCap returns today's warmup-limited cap. The first call starts the
// warmup clock; day N of an M-day warmup interpolates linearly from the
// start cap to the full cap, clamped to [min cap, full cap].
func (s *Service) WarmupCap(ctx context.Context) (int, error) {
	st, err := s.store.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading throttle state: %w", err)
	}

	today := s.today()
	if st.WarmupStart.IsZero() {
		st.WarmupStart = today
		st.UpdatedAt = s.now().UTC()
		if err := s.store.Save(ctx, st); err != nil {
			return 0, fmt.Errorf("starting warmup clock: %w", err)
		}
		log.Printf("[deliverability] warmup started, day 1 of %d", s.cfg.WarmupDays)
	}

	day := int(today.Sub(s.day(st.WarmupStart)).Hours()/24) + 1
	if day < 1 {
		day = 1
	}
	if day >= s.cfg.WarmupDays {
		return s.baseCap, nil
	}

	span := s.cfg.WarmupDays - 1
	if span < 1 {
		span = 1
	}
	frac := float64(day-1) / float64(span)
	cap := int(math.Round(float64(s.cfg.WarmupStart) + frac*float64(s.baseCap-s.cfg.WarmupStart)))

	if cap > s.baseCap {
		cap = s.baseCap
	}
	if cap < s.cfg.SendCapMin {
		cap = s.cfg.SendCapMin
	}
	return cap, nil
}

// CurrentSendCap returns the cap the send stage must honor right now: the
// dynamic cap when one has been computed, the full cap otherwise.
func (s *Service) CurrentSendCap(ctx context.Context) (int, error) {
	st, err := s.store.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading throttle state: %w", err)
	}
	if st.DynamicCap > 0 {
		return st.DynamicCap, nil
	}
	return s.baseCap, nil
}

// Recompute adjusts the dynamic cap from today's rates: halve on bad rates
// (never below the minimum), step up toward the warmup base when healthy,
// and align down when the base itself dropped.
func (s *Service) Recompute(ctx context.Context) (Decision, error) {
	base, err := s.WarmupCap(ctx)
	if err != nil {
		return Decision{}, err
	}
	current, err := s.CurrentSendCap(ctx)
	if err != nil {
		return Decision{}, err
	}
	rates, err := s.rates.RatesToday(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("reading daily rates: %w", err)
	}

	d := Decision{Base: base, Prev: current, New: current, Reason: ReasonNoChange, Rates: rates}

	switch {
	case rates.Sent >= minRateSample && (rates.BouncePct > s.stopBouncePct || rates.OptOutPct > s.stopOptOutPct):
		d.New = int(float64(current) * s.cfg.CapDownFactor)
		if d.New < s.cfg.SendCapMin {
			d.New = s.cfg.SendCapMin
		}
		d.Reason = ReasonRateDown
	case current < base:
		d.New = current + s.cfg.CapUpStep
		if d.New > base {
			d.New = base
		}
		d.Reason = ReasonRateUp
	case current > base:
		d.New = base
		d.Reason = ReasonAlignToBase
	}

	st, err := s.store.Get(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("reading throttle state: %w", err)
	}
	st.DynamicCap = d.New
	st.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, st); err != nil {
		return Decision{}, fmt.Errorf("saving dynamic cap: %w", err)
	}

	if d.Reason != ReasonNoChange {
		log.Printf("[deliverability] cap %d -> %d (%s, sent=%d bounce=%.1f%% optout=%.1f%%)",
			d.Prev, d.New, d.Reason, rates.Sent, rates.BouncePct, rates.OptOutPct)
	}
	return d, nil
}

// Paused reports whether sending is inside an active pause window.
func (s *Service) Paused(ctx context.Context) (bool, time.Time, error) {
	st, err := s.store.Get(ctx)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("reading throttle state: %w", err)
	}
	if !st.PauseUntil.IsZero() && s.now().UTC().Before(st.PauseUntil) {
		return true, st.PauseUntil, nil
	}
	return false, time.Time{}, nil
}

// Pause stops sending until now+d. A longer existing pause is kept.
func (s *Service) Pause(ctx context.Context, d time.Duration) (time.Time, error) {
	st, err := s.store.Get(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading throttle state: %w", err)
	}

	until := s.now().UTC().Add(d)
	if st.PauseUntil.After(until) {
		return st.PauseUntil, nil
	}

	st.PauseUntil = until
	st.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, st); err != nil {
		return time.Time{}, fmt.Errorf("saving pause window: %w", err)
	}
	log.Printf("[deliverability] sending paused until %s", until.Format(time.RFC3339))
	return until, nil
}

// Resume clears any pause window.
func (s *Service) Resume(ctx context.Context) error {
	st, err := s.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("reading throttle state: %w", err)
	}
	if st.PauseUntil.IsZero() {
		return nil
	}
	st.PauseUntil = time.Time{}
	st.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, st); err != nil {
		return fmt.Errorf("clearing pause window: %w", err)
	}
	log.Printf("[deliverability] sending resumed")
	return nil
}

func (s *Service) today() time.Time { return s.day(s.now().UTC()) }

func (s *Service) day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
