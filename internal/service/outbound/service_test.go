package outbound

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensormd/repops/internal/apollo"
	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/mailer"
)

type memRepo struct {
	targets []*domain.Target
	events  []*domain.Event
}

func (m *memRepo) InsertTarget(_ context.Context, t *domain.Target) error {
	cp := *t
	m.targets = append(m.targets, &cp)
	return nil
}

func (m *memRepo) HasTarget(_ context.Context, email, websiteDomain string) (bool, error) {
	for _, t := range m.targets {
		if t.ContactEmail == email || t.WebsiteDomain == websiteDomain {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) TargetsByStatus(_ context.Context, status domain.TargetStatus, limit int) ([]domain.Target, error) {
	var out []domain.Target
	for _, t := range m.targets {
		if t.Status == status {
			out = append(out, *t)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memRepo) StoreDraft(_ context.Context, targetID, variant, subject, body string) error {
	for _, t := range m.targets {
		if t.ID == targetID {
			t.DraftVariant = variant
			t.DraftSubject = subject
			t.DraftBody = body
		}
	}
	return nil
}

func (m *memRepo) MarkStatus(_ context.Context, targetID string, status domain.TargetStatus) error {
	for _, t := range m.targets {
		if t.ID == targetID {
			t.Status = status
		}
	}
	return nil
}

func (m *memRepo) LogEvent(_ context.Context, e *domain.Event) error {
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

func (m *memRepo) CountEventsToday(_ context.Context, typ domain.EventType) (int, error) {
	n := 0
	for _, e := range m.events {
		if e.Type == typ {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) target(id string) *domain.Target {
	for _, t := range m.targets {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (m *memRepo) eventsOf(typ domain.EventType) []*domain.Event {
	var out []*domain.Event
	for _, e := range m.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type fakeDirectory struct {
	shells   []domain.Shell
	contacts []domain.EnrichedContact
	gotIDs   []string
}

func (f *fakeDirectory) Search(_ context.Context, q apollo.SearchQuery) ([]domain.Shell, error) {
	return f.shells, nil
}

func (f *fakeDirectory) BulkEnrich(_ context.Context, ids []string) ([]domain.EnrichedContact, int, error) {
	f.gotIDs = ids
	var out []domain.EnrichedContact
	for _, c := range f.contacts {
		for _, id := range ids {
			if c.PersonID == id {
				out = append(out, c)
			}
		}
	}
	return out, len(ids), nil
}

type setSuppressor map[string]bool

func (s setSuppressor) IsSuppressed(_ context.Context, email, dom string) (bool, error) {
	return s[email] || s[dom], nil
}

type fixedCap int

func (c fixedCap) CurrentSendCap(context.Context) (int, error) { return int(c), nil }

type scriptedTransport struct {
	outcomes map[string]mailer.Outcome
	sent     []mailer.Message
}

func (t *scriptedTransport) Send(_ context.Context, msg mailer.Message) (mailer.Outcome, error) {
	t.sent = append(t.sent, msg)
	if o, ok := t.outcomes[msg.To]; ok {
		return o, nil
	}
	return mailer.Outcome{Status: mailer.SendOK}, nil
}

type recordingScheduler struct {
	targetIDs []string
}

func (r *recordingScheduler) OnInitialSent(_ context.Context, targetID string) error {
	r.targetIDs = append(r.targetIDs, targetID)
	return nil
}

func contact(id, email, dom string) domain.EnrichedContact {
	return domain.EnrichedContact{
		PersonID:  id,
		FirstName: "Sam",
		Title:     "Owner",
		OrgName:   "Acme HVAC",
		OrgDomain: dom,
		Email:     email,
	}
}

func newService(repo *memRepo, dir *fakeDirectory, supp setSuppressor, sendCap int, tr mailer.Transport, sched Scheduler) *Service {
	return New(repo, dir, supp, fixedCap(sendCap), tr, sched, 40, "1 Main St, Austin TX")
}

func TestEnrichAndInsertValidatesAndDedupes(t *testing.T) {
	repo := &memRepo{}
	dir := &fakeDirectory{contacts: []domain.EnrichedContact{
		contact("p1", "sam@acme-hvac.com", "acme-hvac.com"),
		contact("p2", "pat@gmail.com", "gmail.com"),            // webmail: rejected
		contact("p3", "dana@acme-hvac.com", "acme-hvac.com"),   // same domain: deduped
		contact("p4", "lee@blocked.com", "blocked.com"),        // suppressed
		contact("p5", "kim@coolair.com", "https://coolair.com"),// domain normalized
	}}
	supp := setSuppressor{"blocked.com": true}
	svc := newService(repo, dir, supp, 20, &scriptedTransport{}, nil)

	shells := []domain.Shell{
		{PersonID: "p1"}, {PersonID: "p2"}, {PersonID: "p3"}, {PersonID: "p4"}, {PersonID: "p5"},
	}
	res, err := svc.EnrichAndInsert(context.Background(), shells)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Enriched)
	assert.Equal(t, 2, res.Inserted)
	require.Len(t, repo.targets, 2)
	assert.Equal(t, "sam@acme-hvac.com", repo.targets[0].ContactEmail)
	assert.Equal(t, domain.TargetNew, repo.targets[0].Status)
	assert.Equal(t, "coolair.com", repo.targets[1].WebsiteDomain)
	assert.Len(t, repo.eventsOf(domain.EventEnrich), 2)
}

func TestEnrichCapLimitsSpend(t *testing.T) {
	repo := &memRepo{}
	// 38 enrich events already logged today against a cap of 40.
	for i := 0; i < 38; i++ {
		repo.events = append(repo.events, &domain.Event{Type: domain.EventEnrich})
	}
	dir := &fakeDirectory{contacts: []domain.EnrichedContact{
		contact("p1", "a@one.com", "one.com"),
		contact("p2", "b@two.com", "two.com"),
	}}
	svc := newService(repo, dir, setSuppressor{}, 20, &scriptedTransport{}, nil)

	shells := []domain.Shell{{PersonID: "p1"}, {PersonID: "p2"}, {PersonID: "p3"}, {PersonID: "p4"}}
	res, err := svc.EnrichAndInsert(context.Background(), shells)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, dir.gotIDs, "only the remaining cap is enriched")
	assert.Equal(t, 2, res.Enriched)
}

func TestEnrichCapReachedStopsEarly(t *testing.T) {
	repo := &memRepo{}
	for i := 0; i < 40; i++ {
		repo.events = append(repo.events, &domain.Event{Type: domain.EventEnrich})
	}
	dir := &fakeDirectory{}
	svc := newService(repo, dir, setSuppressor{}, 20, &scriptedTransport{}, nil)

	res, err := svc.EnrichAndInsert(context.Background(), []domain.Shell{{PersonID: "p1"}})
	require.NoError(t, err)
	assert.Equal(t, ReasonEnrichCapReached, res.Reason)
	assert.Zero(t, res.Enriched)
	assert.Nil(t, dir.gotIDs)
}

func TestDraftQueuedRotatesVariants(t *testing.T) {
	repo := &memRepo{}
	for i := 0; i < 4; i++ {
		repo.targets = append(repo.targets, &domain.Target{
			ID:          fmt.Sprintf("t%d", i),
			CompanyName: "Acme HVAC",
			FirstName:   "Sam",
			Status:      domain.TargetNew,
		})
	}
	svc := newService(repo, &fakeDirectory{}, setSuppressor{}, 20, &scriptedTransport{}, nil)

	res, err := svc.DraftQueued(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Drafted)

	assert.Equal(t, "A", repo.targets[0].DraftVariant)
	assert.Equal(t, "B", repo.targets[1].DraftVariant)
	assert.Equal(t, "C", repo.targets[2].DraftVariant)
	assert.Equal(t, "A", repo.targets[3].DraftVariant)

	for _, tgt := range repo.targets {
		assert.Equal(t, domain.TargetQueued, tgt.Status)
		assert.Contains(t, tgt.DraftBody, "Hi Sam,")
		assert.Contains(t, tgt.DraftBody, "1 Main St, Austin TX")
		assert.Contains(t, tgt.DraftBody, `reply "opt out"`)
	}
	assert.Contains(t, repo.targets[0].DraftSubject, "Acme HVAC")
	assert.Len(t, repo.eventsOf(domain.EventQueued), 4)
}

func TestDraftFallbacksForMissingFields(t *testing.T) {
	repo := &memRepo{}
	repo.targets = append(repo.targets, &domain.Target{ID: "t1", Status: domain.TargetNew})
	svc := newService(repo, &fakeDirectory{}, setSuppressor{}, 20, &scriptedTransport{}, nil)

	_, err := svc.DraftQueued(context.Background(), 0)
	require.NoError(t, err)
	assert.Contains(t, repo.targets[0].DraftBody, "Hi there,")
	assert.Contains(t, repo.targets[0].DraftSubject, "your company")
}

func queuedTarget(id, email string) *domain.Target {
	return &domain.Target{
		ID:            id,
		CompanyName:   "Acme HVAC",
		WebsiteDomain: strings.SplitN(email, "@", 2)[1],
		ContactEmail:  email,
		Status:        domain.TargetQueued,
		DraftSubject:  "subject " + id,
		DraftBody:     "body " + id,
		CreatedAt:     time.Now(),
	}
}

func TestSendDailyCapSendsAndSchedules(t *testing.T) {
	repo := &memRepo{}
	repo.targets = append(repo.targets,
		queuedTarget("t1", "a@one.com"),
		queuedTarget("t2", "b@two.com"),
	)
	tr := &scriptedTransport{}
	sched := &recordingScheduler{}
	svc := newService(repo, &fakeDirectory{}, setSuppressor{}, 20, tr, sched)

	res, err := svc.SendDailyCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Zero(t, res.Bounces)
	assert.Len(t, tr.sent, 2)
	assert.Equal(t, []string{"t1", "t2"}, sched.targetIDs)
	assert.Equal(t, domain.TargetSent, repo.target("t1").Status)
	assert.Len(t, repo.eventsOf(domain.EventSent), 2)
}

func TestSendDailyCapHonorsRemainingCap(t *testing.T) {
	repo := &memRepo{}
	for i := 0; i < 18; i++ {
		repo.events = append(repo.events, &domain.Event{Type: domain.EventSent})
	}
	for i := 0; i < 5; i++ {
		repo.targets = append(repo.targets, queuedTarget(fmt.Sprintf("t%d", i), fmt.Sprintf("c%d@acme%d.com", i, i)))
	}
	tr := &scriptedTransport{}
	svc := newService(repo, &fakeDirectory{}, setSuppressor{}, 20, tr, nil)

	res, err := svc.SendDailyCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent, "only the remaining cap is sent")
}

func TestSendDailyCapReached(t *testing.T) {
	repo := &memRepo{}
	for i := 0; i < 20; i++ {
		repo.events = append(repo.events, &domain.Event{Type: domain.EventSent})
	}
	repo.targets = append(repo.targets, queuedTarget("t1", "a@one.com"))
	tr := &scriptedTransport{}
	svc := newService(repo, &fakeDirectory{}, setSuppressor{}, 20, tr, nil)

	res, err := svc.SendDailyCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReasonSendCapReached, res.Reason)
	assert.Empty(t, tr.sent)
}

func TestSendDailyCapUsesDynamicCap(t *testing.T) {
	repo := &memRepo{}
	for i := 0; i < 3; i++ {
		repo.targets = append(repo.targets, queuedTarget(fmt.Sprintf("t%d", i), fmt.Sprintf("c%d@acme%d.com", i, i)))
	}
	tr := &scriptedTransport{}
	svc := newService(repo, &fakeDirectory{}, setSuppressor{}, 2, tr, nil)

	res, err := svc.SendDailyCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 2, res.Cap)
}

func TestSendSkipsSuppressedAtSendTime(t *testing.T) {
	// Suppression added between drafting and sending still blocks the send.
	repo := &memRepo{}
	repo.targets = append(repo.targets,
		queuedTarget("t1", "a@blocked.com"),
		queuedTarget("t2", "b@two.com"),
	)
	tr := &scriptedTransport{}
	svc := newService(repo, &fakeDirectory{}, setSuppressor{"blocked.com": true}, 20, tr, nil)

	res, err := svc.SendDailyCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, domain.TargetOptedOut, repo.target("t1").Status)
	assert.Len(t, repo.eventsOf(domain.EventOptOut), 1)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "b@two.com", tr.sent[0].To)
}

func TestSendCircuitBreakerStopsAfterThreeFailures(t *testing.T) {
	repo := &memRepo{}
	outcomes := map[string]mailer.Outcome{}
	for i := 0; i < 5; i++ {
		email := fmt.Sprintf("c%d@acme%d.com", i, i)
		repo.targets = append(repo.targets, queuedTarget(fmt.Sprintf("t%d", i), email))
		outcomes[email] = mailer.Outcome{Status: mailer.SendHardBounce, Code: 550, Reason: "user unknown"}
	}
	tr := &scriptedTransport{outcomes: outcomes}
	svc := newService(repo, &fakeDirectory{}, setSuppressor{}, 20, tr, nil)

	res, err := svc.SendDailyCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Bounces, "stage aborts after three consecutive failures")
	assert.Len(t, tr.sent, 3)
	assert.Equal(t, domain.TargetBounced, repo.target("t0").Status)
	assert.Equal(t, domain.TargetQueued, repo.target("t3").Status, "remaining drafts untouched")

	bounceEvents := repo.eventsOf(domain.EventBounce)
	require.Len(t, bounceEvents, 3)
	assert.Equal(t, "hard_bounce", bounceEvents[0].Meta["class"])
}

func TestSendSuccessResetsCircuitBreaker(t *testing.T) {
	repo := &memRepo{}
	emails := []string{"a@a1.com", "b@b1.com", "c@c1.com", "d@d1.com", "e@e1.com"}
	outcomes := map[string]mailer.Outcome{
		"a@a1.com": {Status: mailer.SendSoftBounce, Code: 450, Reason: "mailbox busy"},
		"b@b1.com": {Status: mailer.SendTransientError, Reason: "timeout"},
		"d@d1.com": {Status: mailer.SendHardBounce, Code: 550, Reason: "user unknown"},
	}
	for i, email := range emails {
		repo.targets = append(repo.targets, queuedTarget(fmt.Sprintf("t%d", i), email))
	}
	tr := &scriptedTransport{outcomes: outcomes}
	svc := newService(repo, &fakeDirectory{}, setSuppressor{}, 20, tr, nil)

	res, err := svc.SendDailyCap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 3, res.Bounces)
	assert.Len(t, tr.sent, 5, "a success between failures keeps the stage alive")
}

func TestSearchShellsCapsLimit(t *testing.T) {
	dir := &fakeDirectory{shells: []domain.Shell{
		{PersonID: "p1"}, {PersonID: "p2"}, {PersonID: "p3"},
	}}
	svc := newService(&memRepo{}, dir, setSuppressor{}, 20, &scriptedTransport{}, nil)

	shells, err := svc.SearchShells(context.Background(), "Acme", "", 2)
	require.NoError(t, err)
	assert.Len(t, shells, 2)
}
