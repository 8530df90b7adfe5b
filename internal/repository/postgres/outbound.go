package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/domain"
)

const targetColumns = `id, company_name, website_domain, city, state,
	first_name, last_name, contact_email, contact_role, source, notes,
	status, draft_variant, draft_subject, draft_body, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*domain.Target, error) {
	var t domain.Target
	err := row.Scan(
		&t.ID, &t.CompanyName, &t.WebsiteDomain, &t.City, &t.State,
		&t.FirstName, &t.LastName, &t.ContactEmail, &t.ContactRole, &t.Source, &t.Notes,
		&t.Status, &t.DraftVariant, &t.DraftSubject, &t.DraftBody, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func insertEvent(ctx context.Context, db *sql.DB, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	meta, err := metaJSON(e.Meta)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO outreach_events (id, target_id, event_type, meta, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, e.ID, e.TargetID, e.Type, meta)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func countEventsToday(ctx context.Context, db *sql.DB, t domain.EventType) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outreach_events
		WHERE event_type = $1
		  AND created_at >= (date_trunc('day', NOW() AT TIME ZONE 'utc') AT TIME ZONE 'utc')
	`, t).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func markTargetStatus(ctx context.Context, db *sql.DB, targetID string, status domain.TargetStatus) error {
	res, err := db.ExecContext(ctx,
		`UPDATE outreach_targets SET status = $2, updated_at = NOW() WHERE id = $1`,
		targetID, status,
	)
	if err != nil {
		return fmt.Errorf("mark target status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark target status: target %s not found", targetID)
	}
	return nil
}

// OutboundRepo implements outbound.Repository against PostgreSQL.
type OutboundRepo struct{ db *sql.DB }

// NewOutboundRepo creates a Postgres-backed outbound repository.
func NewOutboundRepo(db *sql.DB) *OutboundRepo { return &OutboundRepo{db: db} }

func (r *OutboundRepo) InsertTarget(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_targets (
			id, company_name, website_domain, city, state,
			first_name, last_name, contact_email, contact_role, source, notes,
			status, draft_variant, draft_subject, draft_body, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '', '', '', NOW(), NOW())
	`, t.ID, t.CompanyName, t.WebsiteDomain, t.City, t.State,
		t.FirstName, t.LastName, t.ContactEmail, t.ContactRole, t.Source, t.Notes, t.Status)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (r *OutboundRepo) HasTarget(ctx context.Context, email, websiteDomain string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM outreach_targets
			WHERE contact_email = $1 OR website_domain = $2
		)
	`, email, websiteDomain).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has target: %w", err)
	}
	return exists, nil
}

func (r *OutboundRepo) TargetsByStatus(ctx context.Context, status domain.TargetStatus, limit int) ([]domain.Target, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+targetColumns+`
		FROM outreach_targets
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("targets by status: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *OutboundRepo) StoreDraft(ctx context.Context, targetID, variant, subject, body string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outreach_targets
		SET draft_variant = $2, draft_subject = $3, draft_body = $4, updated_at = NOW()
		WHERE id = $1
	`, targetID, variant, subject, body)
	if err != nil {
		return fmt.Errorf("store draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store draft: target %s not found", targetID)
	}
	return nil
}

func (r *OutboundRepo) MarkStatus(ctx context.Context, targetID string, status domain.TargetStatus) error {
	return markTargetStatus(ctx, r.db, targetID, status)
}

func (r *OutboundRepo) LogEvent(ctx context.Context, e *domain.Event) error {
	return insertEvent(ctx, r.db, e)
}

func (r *OutboundRepo) CountEventsToday(ctx context.Context, t domain.EventType) (int, error) {
	return countEventsToday(ctx, r.db, t)
}
