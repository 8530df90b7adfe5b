package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensormd/repops/internal/domain"
)

type memRepo struct {
	processed map[string]*domain.ProcessedMessage
	targets   map[string]*domain.Target // keyed by contact email
	events    []*domain.Event
}

func newMemRepo() *memRepo {
	return &memRepo{
		processed: map[string]*domain.ProcessedMessage{},
		targets:   map[string]*domain.Target{},
	}
}

func (m *memRepo) IsProcessed(_ context.Context, uid string) (bool, error) {
	_, ok := m.processed[uid]
	return ok, nil
}

func (m *memRepo) MarkProcessed(_ context.Context, pm *domain.ProcessedMessage) error {
	cp := *pm
	m.processed[pm.UID] = &cp
	return nil
}

func (m *memRepo) TargetByEmail(_ context.Context, email string) (*domain.Target, error) {
	if t, ok := m.targets[email]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (m *memRepo) LogEvent(_ context.Context, e *domain.Event) error {
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

type fakeSource struct {
	messages []domain.InboundMessage
	gotSince time.Time
}

func (f *fakeSource) Fetch(_ context.Context, since time.Time) ([]domain.InboundMessage, error) {
	f.gotSince = since
	return f.messages, nil
}

type recordingRouter struct {
	routed map[string]domain.Classification
}

func (r *recordingRouter) RouteReply(_ context.Context, targetID string, c domain.Classification) error {
	if r.routed == nil {
		r.routed = map[string]domain.Classification{}
	}
	r.routed[targetID] = c
	return nil
}

type recordingSuppressor struct {
	suppressed []string
}

func (r *recordingSuppressor) SuppressEmailAndDomain(_ context.Context, email, reason string) error {
	r.suppressed = append(r.suppressed, email)
	return nil
}

func TestProcessClassifiesAndRoutes(t *testing.T) {
	repo := newMemRepo()
	repo.targets["sam@acme.com"] = &domain.Target{ID: "t1", ContactEmail: "sam@acme.com", Status: domain.TargetSent}
	src := &fakeSource{messages: []domain.InboundMessage{
		{UID: "101", From: "Sam <sam@acme.com>", Subject: "Re: reviews", Body: "yes"},
	}}
	router := &recordingRouter{}
	supp := &recordingSuppressor{}
	p := NewProcessor(src, repo, router, supp, 14)

	stats, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Seen)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Yes)

	assert.Equal(t, domain.ReplyYes, router.routed["t1"])
	assert.Empty(t, supp.suppressed)

	require.Contains(t, repo.processed, "101")
	assert.Equal(t, domain.ReplyYes, repo.processed["101"].Classification)
	require.Len(t, repo.events, 1)
	assert.Equal(t, domain.EventReply, repo.events[0].Type)
	assert.Equal(t, "yes", repo.events[0].Meta["classification"])
}

func TestProcessIsIdempotentByUID(t *testing.T) {
	repo := newMemRepo()
	repo.targets["sam@acme.com"] = &domain.Target{ID: "t1", ContactEmail: "sam@acme.com"}
	src := &fakeSource{messages: []domain.InboundMessage{
		{UID: "101", From: "sam@acme.com", Body: "yes"},
	}}
	router := &recordingRouter{}
	p := NewProcessor(src, repo, router, &recordingSuppressor{}, 14)

	_, err := p.Process(context.Background())
	require.NoError(t, err)

	stats, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Seen)
	assert.Zero(t, stats.Processed, "second pass is a no-op")
	assert.Len(t, repo.events, 1)
}

func TestProcessOptOutSuppressesEvenWithoutTarget(t *testing.T) {
	repo := newMemRepo()
	src := &fakeSource{messages: []domain.InboundMessage{
		{UID: "55", From: "stranger@other.com", Body: "unsubscribe"},
	}}
	router := &recordingRouter{}
	supp := &recordingSuppressor{}
	p := NewProcessor(src, repo, router, supp, 14)

	stats, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OptOuts)
	assert.Equal(t, []string{"stranger@other.com"}, supp.suppressed)
	assert.Empty(t, router.routed, "no target to route")
	assert.Contains(t, repo.processed, "55")
}

func TestProcessOptOutRoutesKnownTarget(t *testing.T) {
	repo := newMemRepo()
	repo.targets["sam@acme.com"] = &domain.Target{ID: "t1", ContactEmail: "sam@acme.com", Status: domain.TargetSent}
	src := &fakeSource{messages: []domain.InboundMessage{
		{UID: "77", From: "sam@acme.com", Subject: "stop", Body: "remove me please"},
	}}
	router := &recordingRouter{}
	supp := &recordingSuppressor{}
	p := NewProcessor(src, repo, router, supp, 14)

	_, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ReplyOptOut, router.routed["t1"])
	assert.Equal(t, []string{"sam@acme.com"}, supp.suppressed)
}

func TestProcessStripsHTMLBodies(t *testing.T) {
	repo := newMemRepo()
	repo.targets["sam@acme.com"] = &domain.Target{ID: "t1", ContactEmail: "sam@acme.com"}
	src := &fakeSource{messages: []domain.InboundMessage{
		{UID: "9", From: "sam@acme.com", Body: "<p>yes</p>", HTML: true},
	}}
	router := &recordingRouter{}
	p := NewProcessor(src, repo, router, &recordingSuppressor{}, 14)

	stats, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Yes)
	assert.Equal(t, domain.ReplyYes, router.routed["t1"])
}

func TestProcessSkipsBlankUIDs(t *testing.T) {
	repo := newMemRepo()
	src := &fakeSource{messages: []domain.InboundMessage{
		{UID: "", From: "x@y.com", Body: "yes"},
	}}
	p := NewProcessor(src, repo, &recordingRouter{}, &recordingSuppressor{}, 14)

	stats, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Processed)
	assert.Empty(t, repo.processed)
}

func TestProcessLookbackWindow(t *testing.T) {
	src := &fakeSource{}
	p := NewProcessor(src, newMemRepo(), &recordingRouter{}, &recordingSuppressor{}, 7)
	fixed := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	_, err := p.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixed.AddDate(0, 0, -7), src.gotSince)
}
