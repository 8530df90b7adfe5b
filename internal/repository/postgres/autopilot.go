package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tensormd/repops/internal/domain"
)

// AutopilotRepo implements autopilot.Repository against PostgreSQL.
type AutopilotRepo struct{ db *sql.DB }

// NewAutopilotRepo creates a Postgres-backed autopilot repository.
func NewAutopilotRepo(db *sql.DB) *AutopilotRepo { return &AutopilotRepo{db: db} }

func (r *AutopilotRepo) GetTarget(ctx context.Context, id string) (*domain.Target, error) {
	t, err := scanTarget(r.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM outreach_targets WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

func (r *AutopilotRepo) MarkStatus(ctx context.Context, targetID string, status domain.TargetStatus) error {
	return markTargetStatus(ctx, r.db, targetID, status)
}

func (r *AutopilotRepo) LogEvent(ctx context.Context, e *domain.Event) error {
	return insertEvent(ctx, r.db, e)
}

func (r *AutopilotRepo) CountEventsToday(ctx context.Context, t domain.EventType) (int, error) {
	return countEventsToday(ctx, r.db, t)
}

func (r *AutopilotRepo) HasTask(ctx context.Context, targetID string, typ domain.TaskType) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM autopilot_tasks WHERE target_id = $1 AND task_type = $2)`,
		targetID, typ,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has task: %w", err)
	}
	return exists, nil
}

func (r *AutopilotRepo) InsertTask(ctx context.Context, t *domain.AutopilotTask) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	meta, err := metaJSON(t.Meta)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO autopilot_tasks (id, target_id, task_type, due_at, status, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, t.ID, t.TargetID, t.Type, t.DueAt, t.Status, meta)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *AutopilotRepo) DueTasks(ctx context.Context, now time.Time, limit int) ([]domain.AutopilotTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, target_id, task_type, due_at, status, meta, created_at, updated_at
		FROM autopilot_tasks
		WHERE status = $1 AND due_at <= $2
		ORDER BY due_at ASC
		LIMIT $3
	`, domain.TaskPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.AutopilotTask
	for rows.Next() {
		var t domain.AutopilotTask
		var rawMeta []byte
		if err := rows.Scan(&t.ID, &t.TargetID, &t.Type, &t.DueAt, &t.Status, &rawMeta, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if t.Meta, err = scanMeta(rawMeta); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *AutopilotRepo) SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE autopilot_tasks SET status = $2, updated_at = NOW() WHERE id = $1`,
		taskID, status,
	)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set task status: task %s not found", taskID)
	}
	return nil
}

func (r *AutopilotRepo) CancelPendingTasks(ctx context.Context, targetID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE autopilot_tasks SET status = $2, updated_at = NOW()
		WHERE target_id = $1 AND status = $3
	`, targetID, domain.TaskCanceled, domain.TaskPending)
	if err != nil {
		return fmt.Errorf("cancel pending tasks: %w", err)
	}
	return nil
}
