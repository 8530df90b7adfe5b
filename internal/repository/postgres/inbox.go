package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/domain"
)

// InboxRepo implements inbox.Repository against PostgreSQL.
type InboxRepo struct{ db *sql.DB }

// NewInboxRepo creates a Postgres-backed inbox repository.
func NewInboxRepo(db *sql.DB) *InboxRepo { return &InboxRepo{db: db} }

func (r *InboxRepo) IsProcessed(ctx context.Context, uid string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM inbox_processed WHERE uid = $1)`, uid,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is processed: %w", err)
	}
	return exists, nil
}

func (r *InboxRepo) MarkProcessed(ctx context.Context, m *domain.ProcessedMessage) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inbox_processed (id, uid, from_email, subject, classification, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (uid) DO NOTHING
	`, m.ID, m.UID, m.FromEmail, m.Subject, m.Classification)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (r *InboxRepo) TargetByEmail(ctx context.Context, email string) (*domain.Target, error) {
	t, err := scanTarget(r.db.QueryRowContext(ctx, `
		SELECT `+targetColumns+`
		FROM outreach_targets
		WHERE LOWER(contact_email) = LOWER($1)
		ORDER BY created_at DESC
		LIMIT 1
	`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("target by email: %w", err)
	}
	return t, nil
}

func (r *InboxRepo) LogEvent(ctx context.Context, e *domain.Event) error {
	return insertEvent(ctx, r.db, e)
}
