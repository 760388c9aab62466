package store

import (
	"errors"
	"testing"
	"time"

	"github.com/rowanhart/routinely/internal/model"
)

func TestRoutineCreateAndGetWithTasks(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 3, 5, 2, 10)

	if rt.Title != "Morning" {
		t.Errorf("title = %q, want Morning", rt.Title)
	}
	if rt.BonusPoints != 10 {
		t.Errorf("bonus = %d, want 10", rt.BonusPoints)
	}
	if len(rt.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(rt.Tasks))
	}
	for i, task := range rt.Tasks {
		if task.SequenceOrder != i+1 {
			t.Errorf("task[%d].SequenceOrder = %d, want %d", i, task.SequenceOrder, i+1)
		}
		if task.PointValue != 5 {
			t.Errorf("task[%d].PointValue = %d, want 5", i, task.PointValue)
		}
	}
}

func TestRoutineTaskSpecValidation(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rs := NewRoutineStore(db)
	ts := NewTaskStore(db)

	t1, err := ts.Create(f.user.FamilyID, "Brush teeth", "🪥", 2, 5, 0, false)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	t2, err := ts.Create(f.user.FamilyID, "Get dressed", "👕", 5, 5, 0, false)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	cases := []struct {
		name  string
		specs []RoutineTaskSpec
	}{
		{"duplicate sequence", []RoutineTaskSpec{
			{TaskID: t1.ID, SequenceOrder: 1},
			{TaskID: t2.ID, SequenceOrder: 1},
		}},
		{"sequence out of range", []RoutineTaskSpec{
			{TaskID: t1.ID, SequenceOrder: 1},
			{TaskID: t2.ID, SequenceOrder: 3},
		}},
		{"same task twice", []RoutineTaskSpec{
			{TaskID: t1.ID, SequenceOrder: 1},
			{TaskID: t1.ID, SequenceOrder: 2},
		}},
		{"dependency not earlier", []RoutineTaskSpec{
			{TaskID: t1.ID, SequenceOrder: 1, DependsOn: &t2.ID},
			{TaskID: t2.ID, SequenceOrder: 2},
		}},
		{"dependency outside routine", []RoutineTaskSpec{
			{TaskID: t1.ID, SequenceOrder: 1},
			{TaskID: t2.ID, SequenceOrder: 2, DependsOn: ptr(int64(9999))},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rs.Create(f.user.FamilyID, f.child.ID, f.user.ID, "Bad", "", "", model.RecurrenceDaily, nil, nil, 0, tc.specs)
			if !errors.Is(err, ErrInvalidTaskSpecs) {
				t.Fatalf("expected ErrInvalidTaskSpecs, got %v", err)
			}
		})
	}
}

func TestRoutineValidDependencyAccepted(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rs := NewRoutineStore(db)
	ts := NewTaskStore(db)

	t1, _ := ts.Create(f.user.FamilyID, "Brush teeth", "🪥", 2, 5, 0, false)
	t2, _ := ts.Create(f.user.FamilyID, "Rinse", "💧", 1, 2, 0, false)

	r, err := rs.Create(f.user.FamilyID, f.child.ID, f.user.ID, "Teeth", "", "", model.RecurrenceDaily, nil, nil, 0,
		[]RoutineTaskSpec{
			{TaskID: t1.ID, SequenceOrder: 1},
			{TaskID: t2.ID, SequenceOrder: 2, DependsOn: &t1.ID},
		})
	if err != nil {
		t.Fatalf("create routine: %v", err)
	}

	rt, err := rs.GetWithTasks(r.ID)
	if err != nil {
		t.Fatalf("get with tasks: %v", err)
	}
	if rt.Tasks[1].DependsOn == nil || *rt.Tasks[1].DependsOn != t1.ID {
		t.Errorf("expected task 2 to depend on task %d", t1.ID)
	}
}

func TestRoutineUpdateAndSetTasks(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 2, 5, 2, 0)
	rs := NewRoutineStore(db)

	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	updated, err := rs.Update(rt.ID, "Evening", "19:00", "20:00", model.RecurrenceNone, nil, &date, 5, f.child.ID)
	if err != nil {
		t.Fatalf("update routine: %v", err)
	}
	if updated.Title != "Evening" || updated.StartTime != "19:00" || updated.BonusPoints != 5 {
		t.Errorf("update did not stick: %+v", updated)
	}
	if updated.RoutineDate == nil {
		t.Error("expected routine_date to be set")
	}

	// Reverse the task order.
	specs := []RoutineTaskSpec{
		{TaskID: rt.Tasks[1].ID, SequenceOrder: 1},
		{TaskID: rt.Tasks[0].ID, SequenceOrder: 2},
	}
	if err := rs.SetTasks(rt.ID, specs); err != nil {
		t.Fatalf("set tasks: %v", err)
	}

	got, err := rs.GetWithTasks(rt.ID)
	if err != nil {
		t.Fatalf("get with tasks: %v", err)
	}
	if got.Tasks[0].ID != rt.Tasks[1].ID {
		t.Errorf("expected reordered tasks, got first task %d", got.Tasks[0].ID)
	}
}

func TestRoutineListAndDelete(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt1 := createRoutine(t, f, "Morning", 1, 5, 2, 0)
	createRoutine(t, f, "Evening", 1, 5, 2, 0)

	rs := NewRoutineStore(db)

	byFamily, err := rs.ListByFamily(f.user.FamilyID)
	if err != nil {
		t.Fatalf("list by family: %v", err)
	}
	if len(byFamily) != 2 {
		t.Fatalf("expected 2 routines, got %d", len(byFamily))
	}

	byChild, err := rs.ListByChild(f.child.ID)
	if err != nil {
		t.Fatalf("list by child: %v", err)
	}
	if len(byChild) != 2 {
		t.Fatalf("expected 2 routines for child, got %d", len(byChild))
	}

	if err := rs.Delete(rt1.ID); err != nil {
		t.Fatalf("delete routine: %v", err)
	}
	got, err := rs.GetByID(rt1.ID)
	if err != nil {
		t.Fatalf("get deleted routine: %v", err)
	}
	if got != nil {
		t.Error("expected deleted routine to be gone")
	}
}

func TestTaskStatusLifecycle(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 2, 5, 2, 0)
	rs := NewRoutineStore(db)

	day := "2024-03-04"
	now := time.Now().UTC()

	if err := rs.SetTaskStatus(rt.ID, rt.Tasks[0].ID, day, model.TaskStatusCompleted, &now); err != nil {
		t.Fatalf("set task status: %v", err)
	}

	statuses, err := rs.ListTaskStatuses(rt.ID, day)
	if err != nil {
		t.Fatalf("list task statuses: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	st, ok := statuses[rt.Tasks[0].ID]
	if !ok || st.Status != model.TaskStatusCompleted {
		t.Fatalf("expected completed status for task %d, got %+v", rt.Tasks[0].ID, statuses)
	}

	// Upsert back to pending.
	if err := rs.SetTaskStatus(rt.ID, rt.Tasks[0].ID, day, model.TaskStatusPending, nil); err != nil {
		t.Fatalf("set task status again: %v", err)
	}
	statuses, _ = rs.ListTaskStatuses(rt.ID, day)
	if statuses[rt.Tasks[0].ID].Status != model.TaskStatusPending {
		t.Error("expected status upsert to pending")
	}

	// Reset wipes the day.
	if err := rs.SetTaskStatus(rt.ID, rt.Tasks[1].ID, day, model.TaskStatusCompleted, &now); err != nil {
		t.Fatalf("set second status: %v", err)
	}
	if err := rs.ResetDay(rt.ID, day); err != nil {
		t.Fatalf("reset day: %v", err)
	}
	statuses, err = rs.ListTaskStatuses(rt.ID, day)
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(statuses) != 0 {
		t.Errorf("expected 0 statuses after reset, got %d", len(statuses))
	}
}

func ptr[T any](v T) *T { return &v }
