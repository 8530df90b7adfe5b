package deliverability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensormd/repops/internal/config"
	"github.com/tensormd/repops/internal/domain"
)

type memStore struct {
	st domain.ThrottleState
}

func (m *memStore) Get(context.Context) (domain.ThrottleState, error) { return m.st, nil }
func (m *memStore) Save(_ context.Context, st domain.ThrottleState) error {
	m.st = st
	return nil
}

type fixedRates struct {
	rates domain.DailyRates
}

func (f fixedRates) RatesToday(context.Context) (domain.DailyRates, error) { return f.rates, nil }

func testCfg() config.DeliverabilityConfig {
	return config.DeliverabilityConfig{
		SendCapMin:    5,
		WarmupStart:   5,
		WarmupDays:    14,
		CapUpStep:     2,
		CapDownFactor: 0.5,
	}
}

func newTestService(store *memStore, rates domain.DailyRates, at time.Time) *Service {
	svc := New(store, fixedRates{rates}, 20, testCfg(), 8, 3)
	svc.now = func() time.Time { return at }
	return svc
}

func TestWarmupCapStartsClockOnFirstCall(t *testing.T) {
	store := &memStore{}
	day1 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	svc := newTestService(store, domain.DailyRates{}, day1)

	cap, err := svc.WarmupCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, cap, "day 1 uses the start cap")
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), store.st.WarmupStart)
}

func TestWarmupCapRampsLinearly(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		day  int
		want int
	}{
		{1, 5},
		{7, 12},  // 5 + (6/13)*15 ≈ 11.9
		{13, 19}, // 5 + (12/13)*15 ≈ 18.8
		{14, 20},
		{30, 20},
	}

	for _, tt := range tests {
		store := &memStore{st: domain.ThrottleState{WarmupStart: start}}
		at := start.AddDate(0, 0, tt.day-1).Add(10 * time.Hour)
		svc := newTestService(store, domain.DailyRates{}, at)

		cap, err := svc.WarmupCap(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.want, cap, "day %d", tt.day)
	}
}

func TestWarmupCapNeverBelowMinimum(t *testing.T) {
	store := &memStore{st: domain.ThrottleState{WarmupStart: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}}
	svc := newTestService(store, domain.DailyRates{}, time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	svc.cfg.WarmupStart = 1 // below the floor

	cap, err := svc.WarmupCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, cap)
}

func TestCurrentSendCapFallsBackToBase(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, domain.DailyRates{}, time.Now())

	cap, err := svc.CurrentSendCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, cap)

	store.st.DynamicCap = 12
	cap, err = svc.CurrentSendCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, cap)
}

func TestRecomputeHalvesOnBadRates(t *testing.T) {
	// Full volume with 12% bounce rate: cap is halved.
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC) // warmup long over
	store := &memStore{st: domain.ThrottleState{WarmupStart: start, DynamicCap: 20}}
	svc := newTestService(store, domain.DailyRates{Sent: 25, BouncePct: 12}, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))

	d, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonRateDown, d.Reason)
	assert.Equal(t, 20, d.Prev)
	assert.Equal(t, 10, d.New)
	assert.Equal(t, 10, store.st.DynamicCap)
}

func TestRecomputeHalvingStopsAtMinimum(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{st: domain.ThrottleState{WarmupStart: start, DynamicCap: 6}}
	svc := newTestService(store, domain.DailyRates{Sent: 25, OptOutPct: 5}, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))

	d, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonRateDown, d.Reason)
	assert.Equal(t, 5, d.New)
}

func TestRecomputeStepsUpWhenHealthy(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{st: domain.ThrottleState{WarmupStart: start, DynamicCap: 10}}
	svc := newTestService(store, domain.DailyRates{Sent: 10, BouncePct: 1}, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))

	d, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonRateUp, d.Reason)
	assert.Equal(t, 12, d.New)
}

func TestRecomputeStepUpClampsToBase(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{st: domain.ThrottleState{WarmupStart: start, DynamicCap: 19}}
	svc := newTestService(store, domain.DailyRates{Sent: 19}, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))

	d, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonRateUp, d.Reason)
	assert.Equal(t, 20, d.New)
}

func TestRecomputeAlignsDownToWarmupBase(t *testing.T) {
	// Day 1 of warmup (base 5) but dynamic cap still at 20.
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	store := &memStore{st: domain.ThrottleState{WarmupStart: start, DynamicCap: 20}}
	svc := newTestService(store, domain.DailyRates{Sent: 3}, start.Add(12*time.Hour))

	d, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonAlignToBase, d.Reason)
	assert.Equal(t, 5, d.New)
}

func TestRecomputeNoChange(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{st: domain.ThrottleState{WarmupStart: start, DynamicCap: 20}}
	svc := newTestService(store, domain.DailyRates{Sent: 18, BouncePct: 1}, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))

	d, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonNoChange, d.Reason)
	assert.Equal(t, 20, d.New)
}

func TestRecomputeHalvesBelowFullVolume(t *testing.T) {
	// A large base cap must not raise the sample bar: 25 sends at 12%
	// bounce is actionable even when the configured cap is 100.
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{st: domain.ThrottleState{WarmupStart: start, DynamicCap: 100}}
	svc := New(store, fixedRates{domain.DailyRates{Sent: 25, BouncePct: 12}}, 100, testCfg(), 8, 3)
	svc.now = func() time.Time { return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC) }

	d, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonRateDown, d.Reason)
	assert.Equal(t, 50, d.New)
}

func TestLowVolumeBadRatesDoNotHalve(t *testing.T) {
	// 2 sends with 1 bounce is 50% but the sample is too small to act on.
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{st: domain.ThrottleState{WarmupStart: start, DynamicCap: 20}}
	svc := newTestService(store, domain.DailyRates{Sent: 2, BouncePct: 50}, time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC))

	d, err := svc.Recompute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonNoChange, d.Reason)
}

func TestPauseAndResume(t *testing.T) {
	store := &memStore{}
	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, domain.DailyRates{}, at)
	ctx := context.Background()

	paused, _, err := svc.Paused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)

	until, err := svc.Pause(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, at.Add(24*time.Hour), until)

	paused, gotUntil, err := svc.Paused(ctx)
	require.NoError(t, err)
	assert.True(t, paused)
	assert.Equal(t, until, gotUntil)

	// A shorter re-pause keeps the longer window.
	until2, err := svc.Pause(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, until, until2)

	require.NoError(t, svc.Resume(ctx))
	paused, _, err = svc.Paused(ctx)
	require.NoError(t, err)
	assert.False(t, paused)
}

func TestPauseExpires(t *testing.T) {
	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	store := &memStore{st: domain.ThrottleState{PauseUntil: at.Add(-time.Minute)}}
	svc := newTestService(store, domain.DailyRates{}, at)

	paused, _, err := svc.Paused(context.Background())
	require.NoError(t, err)
	assert.False(t, paused)
}
