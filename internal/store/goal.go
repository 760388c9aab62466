package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rowanhart/routinely/internal/model"
	"github.com/rowanhart/routinely/internal/routine"
)

// GoalStore persists goals and computes their progress from completion
// history. Only manual goals carry a stored counter; every other goal type is
// recomputed on read.
type GoalStore struct {
	db          *sql.DB
	completions *CompletionStore
}

func NewGoalStore(db *sql.DB, completions *CompletionStore) *GoalStore {
	return &GoalStore{db: db, completions: completions}
}

func scanGoal(scanner interface{ Scan(...any) error }) (*model.Goal, error) {
	var g model.Goal
	var windowStart, windowEnd, awardedAt sql.NullTime
	var routineID, taskID, awardRewardID sql.NullInt64

	err := scanner.Scan(
		&g.ID, &g.FamilyID, &g.ChildID, &g.Title, &g.GoalType, &g.TargetCount,
		&g.WindowDays, &windowStart, &windowEnd, &routineID, &taskID,
		&g.AwardType, &g.AwardPoints, &awardRewardID, &g.ManualCount, &awardedAt,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if awardedAt.Valid {
		g.AwardedAt = &awardedAt.Time
	}

	if windowStart.Valid {
		g.WindowStart = &windowStart.Time
	}
	if windowEnd.Valid {
		g.WindowEnd = &windowEnd.Time
	}
	if routineID.Valid {
		g.RoutineID = &routineID.Int64
	}
	if taskID.Valid {
		g.TaskID = &taskID.Int64
	}
	if awardRewardID.Valid {
		g.AwardRewardID = &awardRewardID.Int64
	}
	return &g, nil
}

const goalCols = `id, family_id, child_id, title, goal_type, target_count, window_days, window_start, window_end, routine_id, task_id, award_type, award_points, award_reward_id, manual_count, awarded_at, created_at, updated_at`

func (s *GoalStore) Create(g *model.Goal) (*model.Goal, error) {
	var ws, we sql.NullTime
	if g.WindowStart != nil {
		ws = sql.NullTime{Time: *g.WindowStart, Valid: true}
	}
	if g.WindowEnd != nil {
		we = sql.NullTime{Time: *g.WindowEnd, Valid: true}
	}
	var rID, tID, awID sql.NullInt64
	if g.RoutineID != nil {
		rID = sql.NullInt64{Int64: *g.RoutineID, Valid: true}
	}
	if g.TaskID != nil {
		tID = sql.NullInt64{Int64: *g.TaskID, Valid: true}
	}
	if g.AwardRewardID != nil {
		awID = sql.NullInt64{Int64: *g.AwardRewardID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO goals (family_id, child_id, title, goal_type, target_count, window_days, window_start, window_end, routine_id, task_id, award_type, award_points, award_reward_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.FamilyID, g.ChildID, g.Title, g.GoalType, g.TargetCount, g.WindowDays,
		ws, we, rID, tID, g.AwardType, g.AwardPoints, awID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *GoalStore) GetByID(id int64) (*model.Goal, error) {
	row := s.db.QueryRow(`SELECT `+goalCols+` FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *GoalStore) ListByFamily(familyID int64) ([]model.Goal, error) {
	return s.list(`SELECT `+goalCols+` FROM goals WHERE family_id = ? ORDER BY title ASC`, familyID)
}

func (s *GoalStore) ListByChild(childID int64) ([]model.Goal, error) {
	return s.list(`SELECT `+goalCols+` FROM goals WHERE child_id = ? ORDER BY title ASC`, childID)
}

func (s *GoalStore) list(query string, arg any) ([]model.Goal, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

func (s *GoalStore) Update(g *model.Goal) (*model.Goal, error) {
	var ws, we sql.NullTime
	if g.WindowStart != nil {
		ws = sql.NullTime{Time: *g.WindowStart, Valid: true}
	}
	if g.WindowEnd != nil {
		we = sql.NullTime{Time: *g.WindowEnd, Valid: true}
	}
	var rID, tID, awID sql.NullInt64
	if g.RoutineID != nil {
		rID = sql.NullInt64{Int64: *g.RoutineID, Valid: true}
	}
	if g.TaskID != nil {
		tID = sql.NullInt64{Int64: *g.TaskID, Valid: true}
	}
	if g.AwardRewardID != nil {
		awID = sql.NullInt64{Int64: *g.AwardRewardID, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE goals SET title = ?, goal_type = ?, target_count = ?, window_days = ?, window_start = ?, window_end = ?, routine_id = ?, task_id = ?, award_type = ?, award_points = ?, award_reward_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		g.Title, g.GoalType, g.TargetCount, g.WindowDays, ws, we, rID, tID,
		g.AwardType, g.AwardPoints, awID, g.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update goal: %w", err)
	}
	return s.GetByID(g.ID)
}

func (s *GoalStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

// IncrementManual bumps a manual goal's counter by one.
func (s *GoalStore) IncrementManual(id int64) (*model.Goal, error) {
	_, err := s.db.Exec(
		`UPDATE goals SET manual_count = manual_count + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND goal_type = 'manual'`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("increment goal: %w", err)
	}
	return s.GetByID(id)
}

// MarkAwarded claims the goal's one-shot award. Reports false when the goal
// was already awarded, so concurrent award calls cannot both pay out.
func (s *GoalStore) MarkAwarded(id int64) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE goals SET awarded_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND awarded_at IS NULL`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark goal awarded: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark goal awarded: %w", err)
	}
	return n > 0, nil
}

// window resolves a goal's counting window to day keys. Fixed windows win
// over rolling ones; a goal with neither counts everything.
func (s *GoalStore) window(goal *model.Goal, today time.Time) (string, string) {
	if goal.WindowStart != nil && goal.WindowEnd != nil {
		return routine.DayKey(*goal.WindowStart), routine.DayKey(*goal.WindowEnd)
	}
	if goal.WindowDays > 0 {
		from := today.AddDate(0, 0, -(goal.WindowDays - 1))
		return routine.DayKey(from), routine.DayKey(today)
	}
	return "0000-01-01", "9999-12-31"
}

// Progress computes a goal's current progress from completion history.
func (s *GoalStore) Progress(goal *model.Goal, today time.Time) (*model.GoalProgress, error) {
	from, to := s.window(goal, today)

	var current int
	var err error
	switch goal.GoalType {
	case model.GoalTypeManual:
		current = goal.ManualCount

	case model.GoalTypeRoutineCount:
		current, err = s.completions.CountByChild(goal.ChildID, goal.RoutineID, from, to)

	case model.GoalTypeTaskQuota:
		if goal.TaskID == nil {
			return nil, fmt.Errorf("task_quota goal %d has no task", goal.ID)
		}
		current, err = s.completions.CountTaskResults(goal.ChildID, *goal.TaskID, from, to)

	case model.GoalTypeRoutineStreak:
		current, err = s.streak(goal, today)

	default:
		return nil, fmt.Errorf("unknown goal type %q", goal.GoalType)
	}
	if err != nil {
		return nil, err
	}

	return &model.GoalProgress{
		Goal:     *goal,
		Current:  current,
		Achieved: current >= goal.TargetCount,
	}, nil
}

// streak counts consecutive completion days ending today or yesterday (a
// streak is not broken until a full day passes without a completion).
func (s *GoalStore) streak(goal *model.Goal, today time.Time) (int, error) {
	days, err := s.completions.CompletionDays(goal.ChildID, goal.RoutineID)
	if err != nil {
		return 0, err
	}
	if len(days) == 0 {
		return 0, nil
	}

	cursor := today
	if days[0] != routine.DayKey(cursor) {
		cursor = cursor.AddDate(0, 0, -1)
		if days[0] != routine.DayKey(cursor) {
			return 0, nil
		}
	}

	streak := 0
	for _, d := range days {
		if d != routine.DayKey(cursor) {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak, nil
}
