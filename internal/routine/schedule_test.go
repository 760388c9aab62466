package routine

import (
	"testing"
	"time"

	"github.com/rowanhart/routinely/internal/model"
)

func TestDailyAlwaysScheduled(t *testing.T) {
	r := model.Routine{Recurrence: model.RecurrenceDaily}

	for day := 0; day < 7; day++ {
		today := time.Date(2024, 3, 4+day, 8, 0, 0, 0, time.UTC)
		if g := IsScheduledToday(r, today); !g.Scheduled {
			t.Errorf("daily routine not scheduled on %s", today.Weekday())
		}
	}
}

func TestWeeklyScheduledDays(t *testing.T) {
	r := model.Routine{
		Recurrence:     model.RecurrenceWeekly,
		RecurrenceDays: []string{"Mon", "Wed"},
	}

	monday := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	if g := IsScheduledToday(r, monday); !g.Scheduled {
		t.Error("expected scheduled on Monday")
	}

	wednesday := time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)
	if g := IsScheduledToday(r, wednesday); !g.Scheduled {
		t.Error("expected scheduled on Wednesday")
	}

	tuesday := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	g := IsScheduledToday(r, tuesday)
	if g.Scheduled {
		t.Error("expected not scheduled on Tuesday")
	}
	if g.Reason != "Mon, Wed" {
		t.Errorf("reason = %q, want %q", g.Reason, "Mon, Wed")
	}
}

func TestWeeklyEmptyDaysFailsOpen(t *testing.T) {
	r := model.Routine{Recurrence: model.RecurrenceWeekly}

	saturday := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	g := IsScheduledToday(r, saturday)
	if !g.Scheduled {
		t.Error("weekly routine with no days should be scheduled every day")
	}
	if g.Reason != "" {
		t.Errorf("reason = %q, want empty", g.Reason)
	}
}

func TestOneOffScheduledOnDate(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	r := model.Routine{Recurrence: model.RecurrenceNone, RoutineDate: &date}

	// Same calendar date, different time of day.
	sameDay := time.Date(2024, 3, 1, 19, 30, 0, 0, time.UTC)
	if g := IsScheduledToday(r, sameDay); !g.Scheduled {
		t.Error("expected scheduled on routine date")
	}

	nextDay := time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)
	g := IsScheduledToday(r, nextDay)
	if g.Scheduled {
		t.Error("expected not scheduled the day after")
	}
	if g.Reason != "Mar 1, 2024" {
		t.Errorf("reason = %q, want %q", g.Reason, "Mar 1, 2024")
	}
}

func TestOneOffFallsBackToCreationDate(t *testing.T) {
	r := model.Routine{
		Recurrence: model.RecurrenceNone,
		CreatedAt:  time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
	}

	today := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if g := IsScheduledToday(r, today); !g.Scheduled {
		t.Error("expected scheduled on creation date when routine date absent")
	}
}

func TestCanStartAt(t *testing.T) {
	r := model.Routine{StartTime: "07:30"}

	tooEarly := time.Date(2024, 3, 4, 6, 15, 0, 0, time.UTC)
	if CanStartAt(r, tooEarly) {
		t.Error("expected start rejected more than an hour early")
	}

	windowOpen := time.Date(2024, 3, 4, 6, 30, 0, 0, time.UTC)
	if !CanStartAt(r, windowOpen) {
		t.Error("expected start allowed exactly an hour early")
	}

	afterStart := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	if !CanStartAt(r, afterStart) {
		t.Error("expected start allowed after start time")
	}
}

func TestCanStartAtNoStartTime(t *testing.T) {
	r := model.Routine{}
	if !CanStartAt(r, time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)) {
		t.Error("routine without start time should start any time")
	}

	r.StartTime = "not-a-time"
	if !CanStartAt(r, time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)) {
		t.Error("unparseable start time should fail open")
	}
}

func TestDayKey(t *testing.T) {
	got := DayKey(time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC))
	if got != "2024-03-01" {
		t.Errorf("DayKey = %q, want %q", got, "2024-03-01")
	}
}
