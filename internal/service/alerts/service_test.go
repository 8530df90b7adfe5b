package alerts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tensormd/repops/internal/domain"
	"github.com/tensormd/repops/internal/mailer"
)

type memRepo struct {
	alerts []*domain.Alert
}

func (m *memRepo) FindOpen(_ context.Context, kind domain.AlertKind, clientID, locationID, message string) (*domain.Alert, error) {
	for _, a := range m.alerts {
		if a.Status == domain.AlertOpen && a.Kind == kind &&
			a.ClientID == clientID && a.LocationID == locationID && a.Message == message {
			return a, nil
		}
	}
	return nil, nil
}

func (m *memRepo) Insert(_ context.Context, a *domain.Alert) error {
	cp := *a
	m.alerts = append(m.alerts, &cp)
	return nil
}

func (m *memRepo) Touch(_ context.Context, id string, count int, at time.Time) error {
	for _, a := range m.alerts {
		if a.ID == id {
			a.Count = count
			a.UpdatedAt = at
		}
	}
	return nil
}

func (m *memRepo) SetStatus(_ context.Context, id string, status domain.AlertStatus, at time.Time) (bool, error) {
	for _, a := range m.alerts {
		if a.ID == id {
			a.Status = status
			a.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ListOpen(_ context.Context) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, a := range m.alerts {
		if a.Status == domain.AlertOpen {
			out = append(out, *a)
		}
	}
	return out, nil
}

type recordingTransport struct {
	sent []mailer.Message
}

func (r *recordingTransport) Send(_ context.Context, msg mailer.Message) (mailer.Outcome, error) {
	r.sent = append(r.sent, msg)
	return mailer.Outcome{Status: mailer.SendOK}, nil
}

func TestRaiseDeduplicates(t *testing.T) {
	repo := &memRepo{}
	svc := New(repo, nil, "")
	ctx := context.Background()

	svc.Raise(ctx, domain.SeverityError, domain.AlertReviewAuth, "c1", "loc1", "token revoked", nil)
	svc.Raise(ctx, domain.SeverityError, domain.AlertReviewAuth, "c1", "loc1", "token revoked", nil)
	svc.Raise(ctx, domain.SeverityError, domain.AlertReviewAuth, "c1", "loc1", "token revoked", nil)

	require.Len(t, repo.alerts, 1)
	assert.Equal(t, 3, repo.alerts[0].Count)
}

func TestRaiseDistinctKeysInsertSeparately(t *testing.T) {
	repo := &memRepo{}
	svc := New(repo, nil, "")
	ctx := context.Background()

	svc.Raise(ctx, domain.SeverityError, domain.AlertReviewAuth, "c1", "loc1", "token revoked", nil)
	svc.Raise(ctx, domain.SeverityError, domain.AlertReviewAuth, "c2", "loc1", "token revoked", nil)
	svc.Raise(ctx, domain.SeverityWarn, domain.AlertReviewQuota, "c1", "loc1", "quota exceeded", nil)

	assert.Len(t, repo.alerts, 3)
}

func TestRaiseResolvedAlertReopensFresh(t *testing.T) {
	repo := &memRepo{}
	svc := New(repo, nil, "")
	ctx := context.Background()

	svc.Raise(ctx, domain.SeverityError, domain.AlertPipeline, "", "", "search failed", nil)
	require.NoError(t, svc.Resolve(ctx, repo.alerts[0].ID))

	svc.Raise(ctx, domain.SeverityError, domain.AlertPipeline, "", "", "search failed", nil)
	require.Len(t, repo.alerts, 2, "resolved alert no longer coalesces")
	assert.Equal(t, 1, repo.alerts[1].Count)
}

func TestAckAndResolve(t *testing.T) {
	repo := &memRepo{}
	svc := New(repo, nil, "")
	ctx := context.Background()

	svc.Raise(ctx, domain.SeverityWarn, domain.AlertDeliverability, "", "", "cap lowered", nil)
	id := repo.alerts[0].ID

	require.NoError(t, svc.Ack(ctx, id))
	assert.Equal(t, domain.AlertAcked, repo.alerts[0].Status)

	require.NoError(t, svc.Resolve(ctx, id))
	assert.Equal(t, domain.AlertResolved, repo.alerts[0].Status)

	assert.ErrorIs(t, svc.Ack(ctx, "missing"), ErrAlertNotFound)
}

func TestNotificationSentOncePerUniqueAlert(t *testing.T) {
	repo := &memRepo{}
	tr := &recordingTransport{}
	svc := New(repo, tr, "ops@example.com")
	ctx := context.Background()

	svc.Raise(ctx, domain.SeverityCritical, domain.AlertReviewAuth, "c1", "loc1", "token revoked", nil)
	svc.Raise(ctx, domain.SeverityCritical, domain.AlertReviewAuth, "c1", "loc1", "token revoked", nil)

	require.Len(t, tr.sent, 1, "coalesced repeat is not re-emailed")
	assert.Equal(t, "ops@example.com", tr.sent[0].To)
	assert.Contains(t, tr.sent[0].Subject, "review_auth")
	assert.Contains(t, tr.sent[0].Body, "token revoked")
}

func TestInfoAlertsAreNotEmailed(t *testing.T) {
	repo := &memRepo{}
	tr := &recordingTransport{}
	svc := New(repo, tr, "ops@example.com")

	svc.Raise(context.Background(), domain.SeverityInfo, domain.AlertPipeline, "", "", "run complete", nil)
	assert.Empty(t, tr.sent)
	assert.Len(t, repo.alerts, 1)
}
