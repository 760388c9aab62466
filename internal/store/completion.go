package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rowanhart/routinely/internal/model"
	"github.com/rowanhart/routinely/internal/routine"
)

// CompletionStore persists routine completion records, their per-task
// results, and the points-ledger entries a settlement produces. It implements
// routine.SettlementStore.
type CompletionStore struct {
	db *sql.DB
}

func NewCompletionStore(db *sql.DB) *CompletionStore {
	return &CompletionStore{db: db}
}

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.RoutineCompletion, error) {
	var c model.RoutineCompletion
	var within int

	err := scanner.Scan(
		&c.ID, &c.RoutineID, &c.ChildID, &c.CompletedOn, &c.TaskPoints,
		&c.BonusPoints, &within, &c.StartedAt, &c.CompletedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.AllWithinLimits = within != 0
	return &c, nil
}

const completionCols = `id, routine_id, child_id, completed_on, task_points, bonus_points, all_within_limits, started_at, completed_at, created_at`

// GetCompletion returns the record for (routine, child, day), or nil.
func (s *CompletionStore) GetCompletion(routineID, childID int64, day string) (*model.RoutineCompletion, error) {
	row := s.db.QueryRow(
		`SELECT `+completionCols+` FROM routine_completions WHERE routine_id = ? AND child_id = ? AND completed_on = ?`,
		routineID, childID, day,
	)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// RecordSettlement inserts the completion record, its task results, and the
// points-ledger entries in one transaction, and returns the saved record plus
// the child's new point total. The unique (routine, child, day) index is the
// duplicate guard: a constraint violation surfaces as
// routine.ErrDuplicateCompletion so the race loser never double-awards.
//
// A ledger row for task points is written even when the award is zero, as an
// audit marker that the routine was settled.
func (s *CompletionStore) RecordSettlement(rec *model.RoutineCompletion, results []model.TaskResult) (*model.RoutineCompletion, int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var within int
	if rec.AllWithinLimits {
		within = 1
	}

	result, err := tx.Exec(
		`INSERT INTO routine_completions (routine_id, child_id, completed_on, task_points, bonus_points, all_within_limits, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RoutineID, rec.ChildID, rec.CompletedOn, rec.TaskPoints,
		rec.BonusPoints, within, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, 0, routine.ErrDuplicateCompletion
		}
		return nil, 0, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, 0, fmt.Errorf("last insert id: %w", err)
	}

	for _, r := range results {
		if _, err := tx.Exec(
			`INSERT INTO routine_task_results (completion_id, task_id, scheduled_seconds, actual_seconds, points_awarded, stars, completed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, r.TaskID, r.ScheduledSeconds, r.ActualSeconds, r.PointsAwarded, r.Stars, r.CompletedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("insert task result: %w", err)
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO points_entries (child_id, delta, reason, routine_id) VALUES (?, ?, ?, ?)`,
		rec.ChildID, rec.TaskPoints, model.PointsReasonTask, rec.RoutineID,
	); err != nil {
		return nil, 0, fmt.Errorf("insert task points entry: %w", err)
	}
	if rec.BonusPoints > 0 {
		if _, err := tx.Exec(
			`INSERT INTO points_entries (child_id, delta, reason, routine_id) VALUES (?, ?, ?, ?)`,
			rec.ChildID, rec.BonusPoints, model.PointsReasonBonus, rec.RoutineID,
		); err != nil {
			return nil, 0, fmt.Errorf("insert bonus points entry: %w", err)
		}
	}

	var total sql.NullInt64
	if err := tx.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM points_entries WHERE child_id = ?`,
		rec.ChildID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sum points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}

	saved, err := s.getByID(id)
	if err != nil {
		return nil, 0, err
	}
	return saved, int(total.Int64), nil
}

func (s *CompletionStore) getByID(id int64) (*model.RoutineCompletion, error) {
	row := s.db.QueryRow(`SELECT `+completionCols+` FROM routine_completions WHERE id = ?`, id)
	c, err := scanCompletion(row)
	if err != nil {
		return nil, fmt.Errorf("get completion by id: %w", err)
	}
	return c, nil
}

// isUniqueViolation detects the sqlite unique-constraint error without
// depending on driver error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListResults returns a completion's task results ordered by completion time.
func (s *CompletionStore) ListResults(completionID int64) ([]model.TaskResult, error) {
	rows, err := s.db.Query(
		`SELECT id, completion_id, task_id, scheduled_seconds, actual_seconds, points_awarded, stars, completed_at
		 FROM routine_task_results WHERE completion_id = ? ORDER BY completed_at ASC, id ASC`,
		completionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	var results []model.TaskResult
	for rows.Next() {
		var r model.TaskResult
		if err := rows.Scan(&r.ID, &r.CompletionID, &r.TaskID, &r.ScheduledSeconds, &r.ActualSeconds, &r.PointsAwarded, &r.Stars, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListByChild returns a child's completion records for days in [from, to],
// newest first. Day bounds use the same YYYY-MM-DD keys settlement writes.
func (s *CompletionStore) ListByChild(childID int64, from, to string) ([]model.RoutineCompletion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM routine_completions
		 WHERE child_id = ? AND completed_on >= ? AND completed_on <= ?
		 ORDER BY completed_on DESC, id DESC`,
		childID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions by child: %w", err)
	}
	defer rows.Close()

	var completions []model.RoutineCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		completions = append(completions, *c)
	}
	return completions, rows.Err()
}

// CountByChild counts completions for a child within [from, to], optionally
// restricted to one routine. Used for routine_count goal progress.
func (s *CompletionStore) CountByChild(childID int64, routineID *int64, from, to string) (int, error) {
	query := `SELECT COUNT(*) FROM routine_completions WHERE child_id = ? AND completed_on >= ? AND completed_on <= ?`
	args := []any{childID, from, to}
	if routineID != nil {
		query += ` AND routine_id = ?`
		args = append(args, *routineID)
	}

	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count completions: %w", err)
	}
	return n, nil
}

// CompletionDays returns the distinct days (newest first) on which the child
// settled a routine, optionally restricted to one routine. Used for streaks.
func (s *CompletionStore) CompletionDays(childID int64, routineID *int64) ([]string, error) {
	query := `SELECT DISTINCT completed_on FROM routine_completions WHERE child_id = ?`
	args := []any{childID}
	if routineID != nil {
		query += ` AND routine_id = ?`
		args = append(args, *routineID)
	}
	query += ` ORDER BY completed_on DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completion days: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan completion day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// CountTaskResults counts settled results for one task across a child's
// completions within [from, to]. Used for task_quota goal progress.
func (s *CompletionStore) CountTaskResults(childID, taskID int64, from, to string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM routine_task_results tr
		 JOIN routine_completions c ON c.id = tr.completion_id
		 WHERE c.child_id = ? AND tr.task_id = ? AND c.completed_on >= ? AND c.completed_on <= ?`,
		childID, taskID, from, to,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count task results: %w", err)
	}
	return n, nil
}
