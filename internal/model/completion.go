package model

import "time"

// TaskResult records how one task went during a settled routine session.
type TaskResult struct {
	ID               int64     `json:"id"`
	CompletionID     int64     `json:"completion_id"`
	TaskID           int64     `json:"task_id"`
	ScheduledSeconds int       `json:"scheduled_seconds"`
	ActualSeconds    int       `json:"actual_seconds"`
	PointsAwarded    int       `json:"points_awarded"`
	Stars            int       `json:"stars"`
	CompletedAt      time.Time `json:"completed_at"`
}

// RoutineCompletion is the persisted record of one settled routine session.
// At most one exists per (routine, child, calendar day).
type RoutineCompletion struct {
	ID              int64     `json:"id"`
	RoutineID       int64     `json:"routine_id"`
	ChildID         int64     `json:"child_id"`
	CompletedOn     string    `json:"completed_on"` // "YYYY-MM-DD"
	TaskPoints      int       `json:"task_points_awarded"`
	BonusPoints     int       `json:"bonus_points_awarded"`
	AllWithinLimits bool      `json:"all_within_limits"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// PointsEntry is one row of the append-only per-child points ledger.
// Positive deltas are earnings, negative deltas are redemptions.
type PointsEntry struct {
	ID        int64     `json:"id"`
	ChildID   int64     `json:"child_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	RoutineID *int64    `json:"routine_id"`
	RewardID  *int64    `json:"reward_id"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	PointsReasonTask   = "routine_tasks"
	PointsReasonBonus  = "routine_bonus"
	PointsReasonGoal   = "goal_award"
	PointsReasonRedeem = "reward_redemption"
	PointsReasonManual = "manual_adjustment"
)
