package model

import "time"

const (
	RecurrenceNone   = "none"
	RecurrenceDaily  = "daily"
	RecurrenceWeekly = "weekly"
)

// Task is a reusable entry in the family's task library. Routines reference
// tasks rather than owning them.
type Task struct {
	ID               int64     `json:"id"`
	FamilyID         int64     `json:"family_id"`
	Title            string    `json:"title"`
	Icon             string    `json:"icon"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
	PointValue       int       `json:"point_value"`
	MinimumSeconds   int       `json:"minimum_seconds"`
	MinimumEnabled   bool      `json:"minimum_enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ScheduledSeconds returns the task's time limit in seconds, 0 for untimed.
func (t Task) ScheduledSeconds() int {
	return t.TimeLimitMinutes * 60
}

type Routine struct {
	ID             int64      `json:"id"`
	FamilyID       int64      `json:"family_id"`
	ChildID        int64      `json:"child_id"`
	CreatedBy      int64      `json:"created_by"`
	Title          string     `json:"title"`
	StartTime      string     `json:"start_time"` // "HH:MM", empty when unset
	EndTime        string     `json:"end_time"`
	Recurrence     string     `json:"recurrence"`
	RecurrenceDays []string   `json:"recurrence_days"`
	RoutineDate    *time.Time `json:"routine_date"`
	BonusPoints    int        `json:"bonus_points"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RoutineTask is one step of a routine: a library task plus its position and
// optional dependency within this routine.
type RoutineTask struct {
	Task
	RoutineID     int64  `json:"routine_id"`
	SequenceOrder int    `json:"sequence_order"`
	DependsOn     *int64 `json:"depends_on"`
}

// RoutineWithTasks carries a routine and its steps ordered by sequence.
type RoutineWithTasks struct {
	Routine
	Tasks []RoutineTask `json:"tasks"`
}

const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

// RoutineTaskStatus tracks a single task's execution state for one calendar day.
type RoutineTaskStatus struct {
	ID          int64      `json:"id"`
	RoutineID   int64      `json:"routine_id"`
	TaskID      int64      `json:"task_id"`
	StatusDate  string     `json:"status_date"` // "YYYY-MM-DD"
	Status      string     `json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
}
