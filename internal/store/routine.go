package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rowanhart/routinely/internal/model"
)

// ErrInvalidTaskSpecs wraps every routine builder validation failure.
var ErrInvalidTaskSpecs = errors.New("invalid routine task list")

type RoutineStore struct {
	db *sql.DB
}

func NewRoutineStore(db *sql.DB) *RoutineStore {
	return &RoutineStore{db: db}
}

// RoutineTaskSpec is one step of a routine as submitted by the builder UI.
type RoutineTaskSpec struct {
	TaskID        int64  `json:"task_id"`
	SequenceOrder int    `json:"sequence_order"`
	DependsOn     *int64 `json:"depends_on"`
}

// validateTaskSpecs checks the routine builder invariants: sequence orders
// are contiguous 1..N with no duplicates, and a dependency must reference a
// task earlier in the sequence.
func validateTaskSpecs(specs []RoutineTaskSpec) error {
	seen := make(map[int]int64, len(specs)) // sequence -> task id
	byTask := make(map[int64]int, len(specs))
	for _, sp := range specs {
		if sp.SequenceOrder < 1 || sp.SequenceOrder > len(specs) {
			return fmt.Errorf("%w: sequence order %d out of range 1..%d", ErrInvalidTaskSpecs, sp.SequenceOrder, len(specs))
		}
		if _, dup := seen[sp.SequenceOrder]; dup {
			return fmt.Errorf("%w: duplicate sequence order %d", ErrInvalidTaskSpecs, sp.SequenceOrder)
		}
		if _, dup := byTask[sp.TaskID]; dup {
			return fmt.Errorf("%w: task %d appears twice", ErrInvalidTaskSpecs, sp.TaskID)
		}
		seen[sp.SequenceOrder] = sp.TaskID
		byTask[sp.TaskID] = sp.SequenceOrder
	}
	for _, sp := range specs {
		if sp.DependsOn == nil {
			continue
		}
		depSeq, ok := byTask[*sp.DependsOn]
		if !ok {
			return fmt.Errorf("%w: task %d depends on task %d which is not in the routine", ErrInvalidTaskSpecs, sp.TaskID, *sp.DependsOn)
		}
		if depSeq >= sp.SequenceOrder {
			return fmt.Errorf("%w: task %d depends on task %d which is not sequenced earlier", ErrInvalidTaskSpecs, sp.TaskID, *sp.DependsOn)
		}
	}
	return nil
}

func scanRoutine(scanner interface{ Scan(...any) error }) (*model.Routine, error) {
	var r model.Routine
	var days string
	var routineDate sql.NullTime

	err := scanner.Scan(
		&r.ID, &r.FamilyID, &r.ChildID, &r.CreatedBy, &r.Title,
		&r.StartTime, &r.EndTime, &r.Recurrence, &days, &routineDate,
		&r.BonusPoints, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if days != "" {
		r.RecurrenceDays = strings.Split(days, ",")
	}
	if routineDate.Valid {
		r.RoutineDate = &routineDate.Time
	}
	return &r, nil
}

const routineCols = `id, family_id, child_id, created_by, title, start_time, end_time, recurrence, recurrence_days, routine_date, bonus_points, created_at, updated_at`

func (s *RoutineStore) Create(familyID, childID, createdBy int64, title, startTime, endTime, recurrence string, recurrenceDays []string, routineDate *time.Time, bonusPoints int, tasks []RoutineTaskSpec) (*model.Routine, error) {
	if err := validateTaskSpecs(tasks); err != nil {
		return nil, err
	}

	var rd sql.NullTime
	if routineDate != nil {
		rd = sql.NullTime{Time: *routineDate, Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO routines (family_id, child_id, created_by, title, start_time, end_time, recurrence, recurrence_days, routine_date, bonus_points)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		familyID, childID, createdBy, title, startTime, endTime, recurrence,
		strings.Join(recurrenceDays, ","), rd, bonusPoints,
	)
	if err != nil {
		return nil, fmt.Errorf("insert routine: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := insertRoutineTasks(tx, id, tasks); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func insertRoutineTasks(tx *sql.Tx, routineID int64, tasks []RoutineTaskSpec) error {
	for _, sp := range tasks {
		var dep sql.NullInt64
		if sp.DependsOn != nil {
			dep = sql.NullInt64{Int64: *sp.DependsOn, Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO routine_tasks (routine_id, task_id, sequence_order, depends_on) VALUES (?, ?, ?, ?)`,
			routineID, sp.TaskID, sp.SequenceOrder, dep,
		); err != nil {
			return fmt.Errorf("insert routine task: %w", err)
		}
	}
	return nil
}

func (s *RoutineStore) GetByID(id int64) (*model.Routine, error) {
	row := s.db.QueryRow(`SELECT `+routineCols+` FROM routines WHERE id = ?`, id)
	r, err := scanRoutine(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get routine: %w", err)
	}
	return r, nil
}

// GetWithTasks returns the routine and its steps ordered by sequence, or nil
// when the routine does not exist.
func (s *RoutineStore) GetWithTasks(id int64) (*model.RoutineWithTasks, error) {
	r, err := s.GetByID(id)
	if err != nil || r == nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT t.id, t.family_id, t.title, t.icon, t.time_limit_minutes, t.point_value, t.minimum_seconds, t.minimum_enabled, t.created_at, t.updated_at, rt.sequence_order, rt.depends_on
		 FROM routine_tasks rt
		 JOIN tasks t ON t.id = rt.task_id
		 WHERE rt.routine_id = ?
		 ORDER BY rt.sequence_order ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list routine tasks: %w", err)
	}
	defer rows.Close()

	out := &model.RoutineWithTasks{Routine: *r}
	for rows.Next() {
		var rt model.RoutineTask
		var minEnabled int
		var dep sql.NullInt64
		err := rows.Scan(
			&rt.Task.ID, &rt.FamilyID, &rt.Title, &rt.Icon, &rt.TimeLimitMinutes,
			&rt.PointValue, &rt.MinimumSeconds, &minEnabled, &rt.Task.CreatedAt, &rt.Task.UpdatedAt,
			&rt.SequenceOrder, &dep,
		)
		if err != nil {
			return nil, fmt.Errorf("scan routine task: %w", err)
		}
		rt.MinimumEnabled = minEnabled != 0
		rt.RoutineID = id
		if dep.Valid {
			rt.DependsOn = &dep.Int64
		}
		out.Tasks = append(out.Tasks, rt)
	}
	return out, rows.Err()
}

func (s *RoutineStore) ListByFamily(familyID int64) ([]model.Routine, error) {
	return s.list(`SELECT `+routineCols+` FROM routines WHERE family_id = ? ORDER BY title ASC`, familyID)
}

func (s *RoutineStore) ListByChild(childID int64) ([]model.Routine, error) {
	return s.list(`SELECT `+routineCols+` FROM routines WHERE child_id = ? ORDER BY start_time ASC, title ASC`, childID)
}

func (s *RoutineStore) list(query string, arg any) ([]model.Routine, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()

	var routines []model.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		routines = append(routines, *r)
	}
	return routines, rows.Err()
}

func (s *RoutineStore) Update(id int64, title, startTime, endTime, recurrence string, recurrenceDays []string, routineDate *time.Time, bonusPoints int, childID int64) (*model.Routine, error) {
	var rd sql.NullTime
	if routineDate != nil {
		rd = sql.NullTime{Time: *routineDate, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE routines SET title = ?, start_time = ?, end_time = ?, recurrence = ?, recurrence_days = ?, routine_date = ?, bonus_points = ?, child_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, startTime, endTime, recurrence, strings.Join(recurrenceDays, ","), rd, bonusPoints, childID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update routine: %w", err)
	}
	return s.GetByID(id)
}

// SetTasks replaces a routine's task list, re-validating the sequence and
// dependency invariants. Used by the drag-and-drop builder.
func (s *RoutineStore) SetTasks(routineID int64, tasks []RoutineTaskSpec) error {
	if err := validateTaskSpecs(tasks); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM routine_tasks WHERE routine_id = ?`, routineID); err != nil {
		return fmt.Errorf("clear routine tasks: %w", err)
	}
	if err := insertRoutineTasks(tx, routineID, tasks); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *RoutineStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM routines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete routine: %w", err)
	}
	return nil
}

// --- Per-day task status methods ---

// SetTaskStatus upserts a task's execution status for one calendar day.
func (s *RoutineStore) SetTaskStatus(routineID, taskID int64, day, status string, completedAt *time.Time) error {
	var ca sql.NullTime
	if completedAt != nil {
		ca = sql.NullTime{Time: *completedAt, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO routine_task_status (routine_id, task_id, status_date, status, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (routine_id, task_id, status_date) DO UPDATE SET status = excluded.status, completed_at = excluded.completed_at`,
		routineID, taskID, day, status, ca,
	)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	return nil
}

// ListTaskStatuses returns the day's statuses for a routine, keyed by task.
func (s *RoutineStore) ListTaskStatuses(routineID int64, day string) (map[int64]model.RoutineTaskStatus, error) {
	rows, err := s.db.Query(
		`SELECT id, routine_id, task_id, status_date, status, completed_at
		 FROM routine_task_status WHERE routine_id = ? AND status_date = ?`,
		routineID, day,
	)
	if err != nil {
		return nil, fmt.Errorf("list task statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]model.RoutineTaskStatus)
	for rows.Next() {
		var st model.RoutineTaskStatus
		var ca sql.NullTime
		if err := rows.Scan(&st.ID, &st.RoutineID, &st.TaskID, &st.StatusDate, &st.Status, &ca); err != nil {
			return nil, fmt.Errorf("scan task status: %w", err)
		}
		if ca.Valid {
			st.CompletedAt = &ca.Time
		}
		out[st.TaskID] = st
	}
	return out, rows.Err()
}

// ResetDay discards a day's in-progress statuses for a routine, returning
// every task to pending. It does not touch completion records.
func (s *RoutineStore) ResetDay(routineID int64, day string) error {
	_, err := s.db.Exec(
		`DELETE FROM routine_task_status WHERE routine_id = ? AND status_date = ?`,
		routineID, day,
	)
	if err != nil {
		return fmt.Errorf("reset day: %w", err)
	}
	return nil
}
