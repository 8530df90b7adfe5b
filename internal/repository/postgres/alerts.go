package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tensormd/repops/internal/domain"
)

// AlertRepo implements alerts.Repository against PostgreSQL.
type AlertRepo struct{ db *sql.DB }

// NewAlertRepo creates a Postgres-backed alert repository.
func NewAlertRepo(db *sql.DB) *AlertRepo { return &AlertRepo{db: db} }

const alertColumns = `id, severity, kind, client_id, location_id, message, count, meta, status, created_at, updated_at`

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var rawMeta []byte
	err := row.Scan(&a.ID, &a.Severity, &a.Kind, &a.ClientID, &a.LocationID,
		&a.Message, &a.Count, &rawMeta, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Meta, err = scanMeta(rawMeta); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AlertRepo) FindOpen(ctx context.Context, kind domain.AlertKind, clientID, locationID, message string) (*domain.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE status = $1 AND kind = $2 AND client_id = $3 AND location_id = $4 AND message = $5
		LIMIT 1
	`, domain.AlertOpen, kind, clientID, locationID, message))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open alert: %w", err)
	}
	return a, nil
}

func (r *AlertRepo) Insert(ctx context.Context, a *domain.Alert) error {
	meta, err := metaJSON(a.Meta)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, severity, kind, client_id, location_id, message, count, meta, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, a.ID, a.Severity, a.Kind, a.ClientID, a.LocationID, a.Message, a.Count, meta, a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *AlertRepo) Touch(ctx context.Context, id string, count int, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET count = $2, updated_at = $3 WHERE id = $1`,
		id, count, at,
	)
	if err != nil {
		return fmt.Errorf("touch alert: %w", err)
	}
	return nil
}

func (r *AlertRepo) SetStatus(ctx context.Context, id string, status domain.AlertStatus, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, at,
	)
	if err != nil {
		return false, fmt.Errorf("set alert status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *AlertRepo) ListOpen(ctx context.Context) ([]domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE status = $1
		ORDER BY updated_at DESC
	`, domain.AlertOpen)
	if err != nil {
		return nil, fmt.Errorf("list open alerts: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
