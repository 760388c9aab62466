package store

import (
	"database/sql"
	"fmt"

	"github.com/rowanhart/routinely/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var minEnabled int

	err := scanner.Scan(
		&t.ID, &t.FamilyID, &t.Title, &t.Icon, &t.TimeLimitMinutes,
		&t.PointValue, &t.MinimumSeconds, &minEnabled, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.MinimumEnabled = minEnabled != 0
	return &t, nil
}

const taskCols = `id, family_id, title, icon, time_limit_minutes, point_value, minimum_seconds, minimum_enabled, created_at, updated_at`

func (s *TaskStore) Create(familyID int64, title, icon string, timeLimitMinutes, pointValue, minimumSeconds int, minimumEnabled bool) (*model.Task, error) {
	var me int
	if minimumEnabled {
		me = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO tasks (family_id, title, icon, time_limit_minutes, point_value, minimum_seconds, minimum_enabled) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		familyID, title, icon, timeLimitMinutes, pointValue, minimumSeconds, me,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) GetByID(id int64) (*model.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) ListByFamily(familyID int64) ([]model.Task, error) {
	rows, err := s.db.Query(
		`SELECT `+taskCols+` FROM tasks WHERE family_id = ? ORDER BY title ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) Update(id int64, title, icon string, timeLimitMinutes, pointValue, minimumSeconds int, minimumEnabled bool) (*model.Task, error) {
	var me int
	if minimumEnabled {
		me = 1
	}

	_, err := s.db.Exec(
		`UPDATE tasks SET title = ?, icon = ?, time_limit_minutes = ?, point_value = ?, minimum_seconds = ?, minimum_enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		title, icon, timeLimitMinutes, pointValue, minimumSeconds, me, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(id)
}

func (s *TaskStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// CountRoutineReferences reports how many routines currently include this
// task, so handlers can refuse to delete a task that is still in use.
func (s *TaskStore) CountRoutineReferences(taskID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM routine_tasks WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count task references: %w", err)
	}
	return n, nil
}
