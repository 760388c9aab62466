package store

import (
	"errors"
	"testing"
	"time"

	"github.com/rowanhart/routinely/internal/model"
	"github.com/rowanhart/routinely/internal/routine"
)

func settlementRecord(rt *model.RoutineWithTasks, day string, taskPoints, bonusPoints int, within bool) (*model.RoutineCompletion, []model.TaskResult) {
	now := time.Now().UTC()
	rec := &model.RoutineCompletion{
		RoutineID:       rt.ID,
		ChildID:         rt.ChildID,
		CompletedOn:     day,
		TaskPoints:      taskPoints,
		BonusPoints:     bonusPoints,
		AllWithinLimits: within,
		StartedAt:       now.Add(-10 * time.Minute),
		CompletedAt:     now,
	}

	var results []model.TaskResult
	per := 0
	if len(rt.Tasks) > 0 {
		per = taskPoints / len(rt.Tasks)
	}
	for _, task := range rt.Tasks {
		results = append(results, model.TaskResult{
			TaskID:           task.ID,
			ScheduledSeconds: task.ScheduledSeconds(),
			ActualSeconds:    task.ScheduledSeconds(),
			PointsAwarded:    per,
			Stars:            3,
			CompletedAt:      now,
		})
	}
	return rec, results
}

func TestRecordSettlementPersistsRecordResultsAndLedger(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 2, 5, 2, 10)
	cs := NewCompletionStore(db)

	rec, results := settlementRecord(rt, "2024-03-04", 10, 10, true)
	saved, total, err := cs.RecordSettlement(rec, results)
	if err != nil {
		t.Fatalf("record settlement: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("expected saved record to have an id")
	}
	if !saved.AllWithinLimits {
		t.Error("expected all_within_limits to round-trip")
	}
	if total != 20 {
		t.Errorf("new total = %d, want 20", total)
	}

	got, err := cs.GetCompletion(rt.ID, f.child.ID, "2024-03-04")
	if err != nil {
		t.Fatalf("get completion: %v", err)
	}
	if got == nil || got.ID != saved.ID {
		t.Fatalf("get completion returned %+v, want id %d", got, saved.ID)
	}

	taskResults, err := cs.ListResults(saved.ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(taskResults) != 2 {
		t.Fatalf("expected 2 task results, got %d", len(taskResults))
	}

	entries, err := NewPointsStore(db).History(f.child.ID, 10)
	if err != nil {
		t.Fatalf("points history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries (task + bonus), got %d", len(entries))
	}
	reasons := map[string]int{}
	for _, e := range entries {
		reasons[e.Reason] = e.Delta
	}
	if reasons[model.PointsReasonTask] != 10 {
		t.Errorf("task entry delta = %d, want 10", reasons[model.PointsReasonTask])
	}
	if reasons[model.PointsReasonBonus] != 10 {
		t.Errorf("bonus entry delta = %d, want 10", reasons[model.PointsReasonBonus])
	}
}

func TestRecordSettlementSameDayIsRejected(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 1, 5, 2, 0)
	cs := NewCompletionStore(db)

	rec, results := settlementRecord(rt, "2024-03-04", 5, 0, true)
	if _, _, err := cs.RecordSettlement(rec, results); err != nil {
		t.Fatalf("first settlement: %v", err)
	}

	rec2, results2 := settlementRecord(rt, "2024-03-04", 5, 0, true)
	_, _, err := cs.RecordSettlement(rec2, results2)
	if !errors.Is(err, routine.ErrDuplicateCompletion) {
		t.Fatalf("expected ErrDuplicateCompletion, got %v", err)
	}

	// The losing transaction must not have double-awarded.
	total, err := NewPointsStore(db).Total(f.child.ID)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
}

func TestRecordSettlementNextDaySucceeds(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 1, 5, 2, 0)
	cs := NewCompletionStore(db)

	rec, results := settlementRecord(rt, "2024-03-04", 5, 0, true)
	if _, _, err := cs.RecordSettlement(rec, results); err != nil {
		t.Fatalf("first settlement: %v", err)
	}

	rec2, results2 := settlementRecord(rt, "2024-03-05", 5, 0, true)
	if _, _, err := cs.RecordSettlement(rec2, results2); err != nil {
		t.Fatalf("next-day settlement: %v", err)
	}
}

func TestRecordSettlementZeroPointsStillWritesAuditEntry(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 1, 0, 2, 0)
	cs := NewCompletionStore(db)

	rec, results := settlementRecord(rt, "2024-03-04", 0, 0, false)
	if _, _, err := cs.RecordSettlement(rec, results); err != nil {
		t.Fatalf("record settlement: %v", err)
	}

	entries, err := NewPointsStore(db).History(f.child.ID, 10)
	if err != nil {
		t.Fatalf("points history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Delta != 0 || entries[0].Reason != model.PointsReasonTask {
		t.Errorf("entry = delta %d reason %q, want 0 %q", entries[0].Delta, entries[0].Reason, model.PointsReasonTask)
	}
}

func TestListByChildAndCompletionDays(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 1, 5, 2, 0)
	cs := NewCompletionStore(db)

	for _, day := range []string{"2024-03-01", "2024-03-02", "2024-03-04"} {
		rec, results := settlementRecord(rt, day, 5, 0, true)
		if _, _, err := cs.RecordSettlement(rec, results); err != nil {
			t.Fatalf("settlement on %s: %v", day, err)
		}
	}

	completions, err := cs.ListByChild(f.child.ID, "2024-03-02", "2024-03-04")
	if err != nil {
		t.Fatalf("list by child: %v", err)
	}
	if len(completions) != 2 {
		t.Fatalf("expected 2 completions in window, got %d", len(completions))
	}
	if completions[0].CompletedOn != "2024-03-04" {
		t.Errorf("newest first: got %s", completions[0].CompletedOn)
	}

	days, err := cs.CompletionDays(f.child.ID, nil)
	if err != nil {
		t.Fatalf("completion days: %v", err)
	}
	want := []string{"2024-03-04", "2024-03-02", "2024-03-01"}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("days[%d] = %s, want %s", i, days[i], want[i])
		}
	}

	n, err := cs.CountByChild(f.child.ID, &rt.ID, "2024-03-01", "2024-03-04")
	if err != nil {
		t.Fatalf("count by child: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestCountTaskResults(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rt := createRoutine(t, f, "Morning", 2, 5, 2, 0)
	cs := NewCompletionStore(db)

	for _, day := range []string{"2024-03-01", "2024-03-02"} {
		rec, results := settlementRecord(rt, day, 10, 0, true)
		if _, _, err := cs.RecordSettlement(rec, results); err != nil {
			t.Fatalf("settlement on %s: %v", day, err)
		}
	}

	n, err := cs.CountTaskResults(f.child.ID, rt.Tasks[0].ID, "2024-03-01", "2024-03-02")
	if err != nil {
		t.Fatalf("count task results: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	n, err = cs.CountTaskResults(f.child.ID, rt.Tasks[0].ID, "2024-03-02", "2024-03-02")
	if err != nil {
		t.Fatalf("count task results: %v", err)
	}
	if n != 1 {
		t.Errorf("windowed count = %d, want 1", n)
	}
}
