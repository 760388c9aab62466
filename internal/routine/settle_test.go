package routine

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/rowanhart/routinely/internal/model"
)

type fakeStore struct {
	existing  *model.RoutineCompletion
	insertErr error
	recorded  *model.RoutineCompletion
	results   []model.TaskResult
	total     int
}

func (f *fakeStore) GetCompletion(routineID, childID int64, day string) (*model.RoutineCompletion, error) {
	return f.existing, nil
}

func (f *fakeStore) RecordSettlement(rec *model.RoutineCompletion, results []model.TaskResult) (*model.RoutineCompletion, int, error) {
	if f.insertErr != nil {
		return nil, 0, f.insertErr
	}
	saved := *rec
	saved.ID = 1
	f.recorded = &saved
	f.results = results
	f.total += rec.TaskPoints + rec.BonusPoints
	return &saved, f.total, nil
}

type fakeNotifier struct {
	userID    int64
	eventType string
	message   string
}

func (f *fakeNotifier) Notify(userID int64, eventType, message, link string) {
	f.userID = userID
	f.eventType = eventType
	f.message = message
}

var testNow = time.Date(2024, 3, 4, 18, 30, 0, 0, time.UTC) // Monday

func testRoutine() *model.RoutineWithTasks {
	r := &model.RoutineWithTasks{
		Routine: model.Routine{
			ID:          10,
			ChildID:     2,
			CreatedBy:   9,
			Title:       "Morning Routine",
			Recurrence:  model.RecurrenceDaily,
			BonusPoints: 10,
		},
	}
	for i, id := range []int64{101, 102, 103} {
		r.Tasks = append(r.Tasks, model.RoutineTask{
			Task: model.Task{
				ID:               id,
				Title:            "Task",
				TimeLimitMinutes: 2,
				PointValue:       5,
			},
			RoutineID:     10,
			SequenceOrder: i + 1,
		})
	}
	return r
}

func newTestEngine(store *fakeStore, strict bool) (*Engine, *fakeNotifier) {
	n := &fakeNotifier{}
	e := NewEngine(store, n, strict, slog.Default())
	e.SetClock(func() time.Time { return testNow })
	return e, n
}

func metricsFor(seconds map[int64]int) []TaskMetric {
	var out []TaskMetric
	for id, s := range seconds {
		s := s
		out = append(out, TaskMetric{TaskID: id, ActualSeconds: &s})
	}
	return out
}

func TestSettleAllOnTimeAwardsBonus(t *testing.T) {
	store := &fakeStore{}
	e, n := newTestEngine(store, false)

	s, err := e.Settle(testRoutine(), metricsFor(map[int64]int{101: 90, 102: 100, 103: 120}), true, testNow.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if s.Record.TaskPoints != 15 {
		t.Errorf("task points = %d, want 15", s.Record.TaskPoints)
	}
	if s.Record.BonusPoints != 10 {
		t.Errorf("bonus points = %d, want 10", s.Record.BonusPoints)
	}
	if !s.Record.AllWithinLimits {
		t.Error("expected all_within_limits")
	}
	if !s.BonusPossible || !s.BonusEligible {
		t.Errorf("bonus possible=%v eligible=%v, want true/true", s.BonusPossible, s.BonusEligible)
	}
	if s.NewTotalPoints != 25 {
		t.Errorf("new total = %d, want 25", s.NewTotalPoints)
	}
	if len(s.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(s.Results))
	}
	for _, r := range s.Results {
		if r.Stars != 3 {
			t.Errorf("task %d stars = %d, want 3", r.TaskID, r.Stars)
		}
	}
	if s.Record.CompletedOn != "2024-03-04" {
		t.Errorf("completed_on = %q, want 2024-03-04", s.Record.CompletedOn)
	}
	if n.eventType != "routine_completed" {
		t.Errorf("notify event = %q, want routine_completed", n.eventType)
	}
	if n.userID != 9 {
		t.Errorf("notify user = %d, want 9", n.userID)
	}
}

func TestSettleOneTaskOverLimitForfeitsBonus(t *testing.T) {
	store := &fakeStore{}
	e, _ := newTestEngine(store, false)

	// 145s on a 120s task: half credit, within grace, but not within limits.
	s, err := e.Settle(testRoutine(), metricsFor(map[int64]int{101: 90, 102: 100, 103: 145}), true, testNow)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if s.Record.TaskPoints != 13 {
		t.Errorf("task points = %d, want 13 (5+5+3)", s.Record.TaskPoints)
	}
	if s.Record.BonusPoints != 0 {
		t.Errorf("bonus points = %d, want 0", s.Record.BonusPoints)
	}
	if s.Record.AllWithinLimits {
		t.Error("expected all_within_limits false")
	}
	if s.BonusEligible {
		t.Error("expected bonus ineligible")
	}
}

func TestSettleBonusNeedsRequest(t *testing.T) {
	store := &fakeStore{}
	e, _ := newTestEngine(store, false)

	s, err := e.Settle(testRoutine(), metricsFor(map[int64]int{101: 90, 102: 100, 103: 120}), false, testNow)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if s.Record.BonusPoints != 0 {
		t.Errorf("bonus points = %d, want 0 without request", s.Record.BonusPoints)
	}
	if !s.BonusEligible {
		t.Error("eligibility should not depend on the request flag")
	}
}

func TestSettleMissingTaskFailsOpenButForfeitsBonus(t *testing.T) {
	store := &fakeStore{}
	e, _ := newTestEngine(store, false)

	// Task 103 was never reported: it still earns full credit (elapsed
	// defaults to scheduled) but the session no longer counts as complete
	// for bonus purposes.
	s, err := e.Settle(testRoutine(), metricsFor(map[int64]int{101: 90, 102: 100}), true, testNow)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if s.Record.TaskPoints != 15 {
		t.Errorf("task points = %d, want 15", s.Record.TaskPoints)
	}
	if s.Record.AllWithinLimits {
		t.Error("expected all_within_limits false when a task was not reported")
	}
	if s.Record.BonusPoints != 0 {
		t.Errorf("bonus points = %d, want 0", s.Record.BonusPoints)
	}
	if len(s.Results) != 3 {
		t.Errorf("results = %d, want all 3 tasks scored", len(s.Results))
	}
}

func TestSettleReportedWithoutSecondsFailsOpen(t *testing.T) {
	store := &fakeStore{}
	e, _ := newTestEngine(store, false)

	metrics := []TaskMetric{{TaskID: 101}, {TaskID: 102}, {TaskID: 103}}
	s, err := e.Settle(testRoutine(), metrics, true, testNow)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	// No elapsed times at all: every task assumed on time, bonus awarded.
	if s.Record.TaskPoints != 15 {
		t.Errorf("task points = %d, want 15", s.Record.TaskPoints)
	}
	if s.Record.BonusPoints != 10 {
		t.Errorf("bonus points = %d, want 10", s.Record.BonusPoints)
	}
}

func TestSettleStrictModeRejectsMissingMetrics(t *testing.T) {
	store := &fakeStore{}
	e, _ := newTestEngine(store, true)

	_, err := e.Settle(testRoutine(), metricsFor(map[int64]int{101: 90}), true, testNow)
	if !errors.Is(err, ErrMissingMetrics) {
		t.Fatalf("err = %v, want ErrMissingMetrics", err)
	}
	if store.recorded != nil {
		t.Error("strict rejection must not persist anything")
	}
}

func TestSettleRejectsNegativeDurations(t *testing.T) {
	store := &fakeStore{}
	e, _ := newTestEngine(store, false)

	_, err := e.Settle(testRoutine(), metricsFor(map[int64]int{101: -50, 102: -50, 103: -50}), true, testNow)
	if !errors.Is(err, ErrInvalidMetrics) {
		t.Fatalf("err = %v, want ErrInvalidMetrics", err)
	}
	if store.recorded != nil {
		t.Error("invalid metrics must not persist anything")
	}
}

func TestSettleAlreadyCompleted(t *testing.T) {
	prior := &model.RoutineCompletion{
		ID:          4,
		RoutineID:   10,
		ChildID:     2,
		CompletedOn: "2024-03-04",
		TaskPoints:  12,
	}
	store := &fakeStore{existing: prior}
	e, n := newTestEngine(store, false)

	s, err := e.Settle(testRoutine(), nil, true, testNow)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAlreadyCompleted", err)
	}
	if s == nil || s.Record != prior {
		t.Error("expected prior record summary")
	}
	if store.recorded != nil {
		t.Error("duplicate settlement must not insert a second record")
	}
	if n.eventType != "" {
		t.Error("duplicate settlement must not notify")
	}
}

func TestSettleNotScheduledToday(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r := testRoutine()
	r.Recurrence = model.RecurrenceNone
	r.RoutineDate = &date

	store := &fakeStore{}
	e, _ := newTestEngine(store, false) // clock is 2024-03-04

	_, err := e.Settle(r, metricsFor(map[int64]int{101: 90, 102: 90, 103: 90}), true, testNow)
	if !errors.Is(err, ErrNotScheduledToday) {
		t.Fatalf("err = %v, want ErrNotScheduledToday", err)
	}

	var nse *NotScheduledError
	if !errors.As(err, &nse) {
		t.Fatal("expected *NotScheduledError")
	}
	if nse.Reason != "Mar 1, 2024" {
		t.Errorf("reason = %q, want %q", nse.Reason, "Mar 1, 2024")
	}
	if store.recorded != nil {
		t.Error("off-schedule settlement must not persist anything")
	}
}

func TestSettleLosesInsertRace(t *testing.T) {
	store := &fakeStore{insertErr: ErrDuplicateCompletion}
	e, n := newTestEngine(store, false)

	_, err := e.Settle(testRoutine(), metricsFor(map[int64]int{101: 90, 102: 90, 103: 90}), true, testNow)
	if !errors.Is(err, ErrDuplicateCompletion) {
		t.Fatalf("err = %v, want ErrDuplicateCompletion", err)
	}
	if n.eventType != "" {
		t.Error("race loser must not notify")
	}
}

func TestCheckMinimumDuration(t *testing.T) {
	task := model.Task{MinimumEnabled: true, MinimumSeconds: 30}

	if CheckMinimumDuration(task, 29) {
		t.Error("expected rejection below minimum")
	}
	if !CheckMinimumDuration(task, 30) {
		t.Error("expected acceptance at minimum")
	}

	task.MinimumEnabled = false
	if !CheckMinimumDuration(task, 0) {
		t.Error("disabled minimum should never reject")
	}
}
