package routine

import (
	"strings"
	"time"

	"github.com/rowanhart/routinely/internal/model"
)

// startWindowLead is how far before a routine's start time a child may begin
// it. Advisory only: it gates starting a routine, never settling one.
const startWindowLead = time.Hour

// Gate is the schedule gate's verdict for a routine on a given day. When the
// routine is not scheduled, Reason holds a user-facing label for the allowed
// days or date.
type Gate struct {
	Scheduled bool
	Reason    string
}

// IsScheduledToday reports whether a routine's recurrence rule permits it
// today. Weekly routines with no days configured are treated as scheduled
// every day. One-off routines fall back to their creation date when no
// routine date was set.
func IsScheduledToday(r model.Routine, today time.Time) Gate {
	switch r.Recurrence {
	case model.RecurrenceDaily:
		return Gate{Scheduled: true}

	case model.RecurrenceWeekly:
		if len(r.RecurrenceDays) == 0 {
			return Gate{Scheduled: true}
		}
		day := today.Weekday().String()[:3]
		for _, d := range r.RecurrenceDays {
			if strings.EqualFold(d, day) {
				return Gate{Scheduled: true}
			}
		}
		return Gate{Reason: strings.Join(r.RecurrenceDays, ", ")}

	default:
		date := r.CreatedAt
		if r.RoutineDate != nil {
			date = *r.RoutineDate
		}
		if sameDay(date, today) {
			return Gate{Scheduled: true}
		}
		return Gate{Reason: date.Format("Jan 2, 2006")}
	}
}

// CanStartAt reports whether a routine may be started now: no earlier than
// one hour before its start time. Routines without a start time (or with one
// that does not parse) can start any time.
func CanStartAt(r model.Routine, now time.Time) bool {
	if r.StartTime == "" {
		return true
	}
	t, err := time.Parse("15:04", r.StartTime)
	if err != nil {
		return true
	}
	start := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	return !now.Before(start.Add(-startWindowLead))
}

// DayKey formats a time as the calendar-day key used for completion records
// and task statuses.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
