package domain

import "time"

// TaskType identifies a scheduled follow-up step.
type TaskType string

const (
	TaskFollowup1      TaskType = "followup_1"
	TaskFollowup2      TaskType = "followup_2"
	TaskFollowup3      TaskType = "followup_3"
	TaskSnoozeFollowup TaskType = "snooze_followup"
)

// TaskStatus is the lifecycle of a scheduled task.
type TaskStatus string

const (
	TaskPending  TaskStatus = "pending"
	TaskDone     TaskStatus = "done"
	TaskSkipped  TaskStatus = "skipped"
	TaskCanceled TaskStatus = "canceled"
)

// AutopilotTask is one scheduled follow-up. At most one pending task may
// exist per (target, task_type); all pending tasks for a target are canceled
// the moment that target reaches a terminal or replied status.
type AutopilotTask struct {
	ID        string            `json:"id" db:"id"`
	TargetID  string            `json:"target_id" db:"target_id"`
	Type      TaskType          `json:"task_type" db:"task_type"`
	DueAt     time.Time         `json:"due_at" db:"due_at"`
	Status    TaskStatus        `json:"status" db:"status"`
	Meta      map[string]string `json:"meta,omitempty" db:"meta"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" db:"updated_at"`
}

// ThrottleState is the deliverability control state, owned exclusively by the
// deliverability service. It replaces ad hoc key/value scalar rows with one
// explicit struct that is read-modify-written under the job lock.
type ThrottleState struct {
	WarmupStart time.Time `json:"warmup_start" db:"warmup_start"`
	PauseUntil  time.Time `json:"pause_until" db:"pause_until"`
	DynamicCap  int       `json:"dynamic_cap" db:"dynamic_cap"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// DailyRates summarizes today's send outcomes. Percentages are 0 when
// nothing was sent.
type DailyRates struct {
	Sent      int     `json:"sent"`
	BouncePct float64 `json:"bounce_pct"`
	OptOutPct float64 `json:"optout_pct"`
}
