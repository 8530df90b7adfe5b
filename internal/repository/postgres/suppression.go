package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tensormd/repops/internal/domain"
)

// OptOutRepo implements suppression.Repository against PostgreSQL.
type OptOutRepo struct{ db *sql.DB }

// NewOptOutRepo creates a Postgres-backed opt-out registry.
func NewOptOutRepo(db *sql.DB) *OptOutRepo { return &OptOutRepo{db: db} }

func (r *OptOutRepo) Exists(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM optout_registry WHERE email_or_domain = ANY($1))`,
		pq.Array(keys),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("optout exists: %w", err)
	}
	return exists, nil
}

func (r *OptOutRepo) Upsert(ctx context.Context, entry *domain.OptOutEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO optout_registry (id, email_or_domain, reason, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (email_or_domain) DO NOTHING
	`, entry.ID, entry.EmailOrDomain, entry.Reason)
	if err != nil {
		return fmt.Errorf("upsert optout: %w", err)
	}
	return nil
}

func (r *OptOutRepo) List(ctx context.Context, limit, offset int) ([]domain.OptOutEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email_or_domain, reason, created_at
		FROM optout_registry
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list optouts: %w", err)
	}
	defer rows.Close()

	var out []domain.OptOutEntry
	for rows.Next() {
		var e domain.OptOutEntry
		if err := rows.Scan(&e.ID, &e.EmailOrDomain, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan optout: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
