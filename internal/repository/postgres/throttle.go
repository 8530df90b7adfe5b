package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tensormd/repops/internal/domain"
)

// ThrottleStore implements deliverability.StateStore against PostgreSQL.
// The state lives in a single row; the first Save creates it.
type ThrottleStore struct{ db *sql.DB }

// NewThrottleStore creates a Postgres-backed throttle state store.
func NewThrottleStore(db *sql.DB) *ThrottleStore { return &ThrottleStore{db: db} }

func (s *ThrottleStore) Get(ctx context.Context) (domain.ThrottleState, error) {
	var st domain.ThrottleState
	var warmup, pause sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT warmup_start, pause_until, dynamic_cap, updated_at FROM throttle_state WHERE id = 1`,
	).Scan(&warmup, &pause, &st.DynamicCap, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ThrottleState{}, nil
	}
	if err != nil {
		return domain.ThrottleState{}, fmt.Errorf("get throttle state: %w", err)
	}
	if warmup.Valid {
		st.WarmupStart = warmup.Time
	}
	if pause.Valid {
		st.PauseUntil = pause.Time
	}
	return st, nil
}

func (s *ThrottleStore) Save(ctx context.Context, st domain.ThrottleState) error {
	warmup := sql.NullTime{Time: st.WarmupStart, Valid: !st.WarmupStart.IsZero()}
	pause := sql.NullTime{Time: st.PauseUntil, Valid: !st.PauseUntil.IsZero()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO throttle_state (id, warmup_start, pause_until, dynamic_cap, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			warmup_start = $1, pause_until = $2, dynamic_cap = $3, updated_at = NOW()
	`, warmup, pause, st.DynamicCap)
	if err != nil {
		return fmt.Errorf("save throttle state: %w", err)
	}
	return nil
}

// RatesRepo implements the RateSource interfaces from today's event log.
type RatesRepo struct{ db *sql.DB }

// NewRatesRepo creates a Postgres-backed rate source.
func NewRatesRepo(db *sql.DB) *RatesRepo { return &RatesRepo{db: db} }

func (r *RatesRepo) RatesToday(ctx context.Context) (domain.DailyRates, error) {
	var sent, bounces, optouts int
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE event_type = $1),
			COUNT(*) FILTER (WHERE event_type = $2),
			COUNT(*) FILTER (WHERE event_type = $3)
		FROM outreach_events
		WHERE created_at >= (date_trunc('day', NOW() AT TIME ZONE 'utc') AT TIME ZONE 'utc')
	`, domain.EventSent, domain.EventBounce, domain.EventOptOut).Scan(&sent, &bounces, &optouts)
	if err != nil {
		return domain.DailyRates{}, fmt.Errorf("rates today: %w", err)
	}

	rates := domain.DailyRates{Sent: sent}
	if sent > 0 {
		rates.BouncePct = float64(bounces) / float64(sent) * 100
		rates.OptOutPct = float64(optouts) / float64(sent) * 100
	}
	return rates, nil
}
