package model

import "time"

const (
	GoalTypeManual        = "manual"
	GoalTypeRoutineStreak = "routine_streak"
	GoalTypeRoutineCount  = "routine_count"
	GoalTypeTaskQuota     = "task_quota"
)

const (
	GoalAwardPoints = "points"
	GoalAwardReward = "reward"
	GoalAwardBoth   = "both"
)

// Goal is a progress target for one child. Progress is recomputed from
// completion history on read, never stored (except for manual goals, which
// carry their own counter).
type Goal struct {
	ID            int64      `json:"id"`
	FamilyID      int64      `json:"family_id"`
	ChildID       int64      `json:"child_id"`
	Title         string     `json:"title"`
	GoalType      string     `json:"goal_type"`
	TargetCount   int        `json:"target_count"`
	WindowDays    int        `json:"window_days"` // rolling window; 0 when fixed
	WindowStart   *time.Time `json:"window_start"`
	WindowEnd     *time.Time `json:"window_end"`
	RoutineID     *int64     `json:"routine_id"` // scope for routine_count/streak
	TaskID        *int64     `json:"task_id"`    // scope for task_quota
	AwardType     string     `json:"award_type"`
	AwardPoints   int        `json:"award_points"`
	AwardRewardID *int64     `json:"award_reward_id"`
	ManualCount   int        `json:"manual_count"`
	AwardedAt     *time.Time `json:"awarded_at,omitempty"` // set once; awards are one-shot
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// GoalProgress is a goal plus its computed progress.
type GoalProgress struct {
	Goal
	Current  int  `json:"current"`
	Achieved bool `json:"achieved"`
}
