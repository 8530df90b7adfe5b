package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tensormd/repops/internal/domain"
)

// ReputationRepo implements reputation.Repository against PostgreSQL.
type ReputationRepo struct{ db *sql.DB }

// NewReputationRepo creates a Postgres-backed reputation repository.
func NewReputationRepo(db *sql.DB) *ReputationRepo { return &ReputationRepo{db: db} }

func (r *ReputationRepo) ActiveClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, plan, status, refresh_token, created_at
		FROM clients
		WHERE status = $1
		ORDER BY created_at ASC
	`, domain.ClientActive)
	if err != nil {
		return nil, fmt.Errorf("active clients: %w", err)
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Plan, &c.Status, &c.RefreshToken, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ReputationRepo) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var c domain.Client
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, plan, status, refresh_token, created_at
		FROM clients WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Plan, &c.Status, &c.RefreshToken, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

func (r *ReputationRepo) ActiveLocations(ctx context.Context, clientID string) ([]domain.Location, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, client_id, resource_name, display_name, status, created_at
		FROM locations
		WHERE client_id = $1 AND status = 'active'
		ORDER BY created_at ASC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("active locations: %w", err)
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		var l domain.Location
		if err := rows.Scan(&l.ID, &l.ClientID, &l.ResourceName, &l.DisplayName, &l.Status, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const reviewColumns = `id, client_id, location_id, resource_name, reviewer_name,
	rating, comment, review_time, has_reply, reply_text, status, meta, created_at, updated_at`

func scanReview(row rowScanner) (*domain.Review, error) {
	var rv domain.Review
	var rawMeta []byte
	err := row.Scan(&rv.ID, &rv.ClientID, &rv.LocationID, &rv.ResourceName, &rv.ReviewerName,
		&rv.Rating, &rv.Comment, &rv.ReviewTime, &rv.HasReply, &rv.ReplyText, &rv.Status,
		&rawMeta, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rv.Meta, err = scanMeta(rawMeta); err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *ReputationRepo) ReviewByResourceName(ctx context.Context, resourceName string) (*domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE resource_name = $1`, resourceName,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("review by resource name: %w", err)
	}
	return rv, nil
}

func (r *ReputationRepo) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}

func (r *ReputationRepo) InsertReview(ctx context.Context, rv *domain.Review) error {
	meta, err := metaJSON(rv.Meta)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reviews (id, client_id, location_id, resource_name, reviewer_name,
			rating, comment, review_time, has_reply, reply_text, status, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rv.ID, rv.ClientID, rv.LocationID, rv.ResourceName, rv.ReviewerName,
		rv.Rating, rv.Comment, rv.ReviewTime, rv.HasReply, rv.ReplyText, rv.Status, meta,
		rv.CreatedAt, rv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *ReputationRepo) UpdateReview(ctx context.Context, rv *domain.Review) error {
	meta, err := metaJSON(rv.Meta)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE reviews SET reviewer_name = $2, rating = $3, comment = $4, review_time = $5,
			has_reply = $6, reply_text = $7, status = $8, meta = $9, updated_at = $10
		WHERE id = $1
	`, rv.ID, rv.ReviewerName, rv.Rating, rv.Comment, rv.ReviewTime,
		rv.HasReply, rv.ReplyText, rv.Status, meta, rv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update review: review %s not found", rv.ID)
	}
	return nil
}

func (r *ReputationRepo) NewReviews(ctx context.Context, limit int) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE status = $1 AND has_reply = false
		ORDER BY review_time ASC
		LIMIT $2
	`, domain.ReviewNew, limit)
	if err != nil {
		return nil, fmt.Errorf("new reviews: %w", err)
	}
	defer rows.Close()
	return collectReviews(rows)
}

func (r *ReputationRepo) ReviewsInWindow(ctx context.Context, clientID string, start, end time.Time) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE client_id = $1 AND review_time >= $2 AND review_time < $3
		ORDER BY review_time ASC
	`, clientID, start, end)
	if err != nil {
		return nil, fmt.Errorf("reviews in window: %w", err)
	}
	defer rows.Close()
	return collectReviews(rows)
}

func collectReviews(rows *sql.Rows) ([]domain.Review, error) {
	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, *rv)
	}
	return out, rows.Err()
}

const draftColumns = `id, review_id, client_id, text, status, approved_by, approved_at, meta, created_at, updated_at`

func scanDraft(row rowScanner) (*domain.ReplyDraft, error) {
	var d domain.ReplyDraft
	var rawMeta []byte
	var approvedAt sql.NullTime
	err := row.Scan(&d.ID, &d.ReviewID, &d.ClientID, &d.Text, &d.Status,
		&d.ApprovedBy, &approvedAt, &rawMeta, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if approvedAt.Valid {
		d.ApprovedAt = approvedAt.Time
	}
	if d.Meta, err = scanMeta(rawMeta); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *ReputationRepo) DraftByReviewID(ctx context.Context, reviewID string) (*domain.ReplyDraft, error) {
	d, err := scanDraft(r.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM reply_drafts WHERE review_id = $1 ORDER BY created_at DESC LIMIT 1`,
		reviewID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("draft by review: %w", err)
	}
	return d, nil
}

func (r *ReputationRepo) GetDraft(ctx context.Context, id string) (*domain.ReplyDraft, error) {
	d, err := scanDraft(r.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM reply_drafts WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	return d, nil
}

func (r *ReputationRepo) InsertDraft(ctx context.Context, d *domain.ReplyDraft) error {
	meta, err := metaJSON(d.Meta)
	if err != nil {
		return err
	}
	approvedAt := sql.NullTime{Time: d.ApprovedAt, Valid: !d.ApprovedAt.IsZero()}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reply_drafts (id, review_id, client_id, text, status, approved_by, approved_at, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.ReviewID, d.ClientID, d.Text, d.Status, d.ApprovedBy, approvedAt, meta, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

func (r *ReputationRepo) UpdateDraft(ctx context.Context, d *domain.ReplyDraft) error {
	meta, err := metaJSON(d.Meta)
	if err != nil {
		return err
	}
	approvedAt := sql.NullTime{Time: d.ApprovedAt, Valid: !d.ApprovedAt.IsZero()}
	res, err := r.db.ExecContext(ctx, `
		UPDATE reply_drafts SET text = $2, status = $3, approved_by = $4, approved_at = $5,
			meta = $6, updated_at = $7
		WHERE id = $1
	`, d.ID, d.Text, d.Status, d.ApprovedBy, approvedAt, meta, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update draft: draft %s not found", d.ID)
	}
	return nil
}

func (r *ReputationRepo) ApprovedDrafts(ctx context.Context, limit int) ([]domain.ReplyDraft, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM reply_drafts
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, domain.DraftApproved, limit)
	if err != nil {
		return nil, fmt.Errorf("approved drafts: %w", err)
	}
	defer rows.Close()

	var out []domain.ReplyDraft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *ReputationRepo) InsertWeeklyReport(ctx context.Context, w *domain.WeeklyReport) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO weekly_reports (id, client_id, week_start, week_end, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, w.ID, w.ClientID, w.WeekStart, w.WeekEnd, w.Summary, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert weekly report: %w", err)
	}
	return nil
}
