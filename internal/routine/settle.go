package routine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rowanhart/routinely/internal/model"
)

var (
	// ErrAlreadyCompleted means a completion record already existed for this
	// routine, child, and day when settlement began.
	ErrAlreadyCompleted = errors.New("routine already completed today")
	// ErrDuplicateCompletion means a concurrent settlement won the race: the
	// storage-level unique constraint rejected our insert.
	ErrDuplicateCompletion = errors.New("duplicate routine completion")
	// ErrNotScheduledToday means the schedule gate rejected settlement.
	ErrNotScheduledToday = errors.New("routine not scheduled today")
	// ErrMissingMetrics is returned in strict mode when the client omitted
	// timing for one or more tasks.
	ErrMissingMetrics = errors.New("task metrics missing")
	// ErrInvalidMetrics means the client reported a negative duration.
	ErrInvalidMetrics = errors.New("invalid task metrics")
)

// NotScheduledError carries the schedule gate's reason label so callers can
// show the allowed days or date. It matches ErrNotScheduledToday under
// errors.Is.
type NotScheduledError struct {
	Reason string
}

func (e *NotScheduledError) Error() string {
	if e.Reason == "" {
		return "routine not scheduled today"
	}
	return "routine not scheduled today (scheduled: " + e.Reason + ")"
}

func (e *NotScheduledError) Is(target error) bool {
	return target == ErrNotScheduledToday
}

// TaskMetric is the client-reported timing for one task. A nil ActualSeconds
// means the client completed the task but sent no elapsed time.
type TaskMetric struct {
	TaskID        int64
	ActualSeconds *int
	CompletedAt   *time.Time
}

// Settlement summarizes one settled routine session.
type Settlement struct {
	Record         *model.RoutineCompletion
	Results        []model.TaskResult
	NewTotalPoints int
	BonusPossible  bool
	BonusEligible  bool
}

// SettlementStore persists completion records. RecordSettlement must insert
// the record, its task results, and the points-ledger entries in a single
// transaction, and must return ErrDuplicateCompletion when the unique
// (routine, child, day) constraint rejects the record.
type SettlementStore interface {
	GetCompletion(routineID, childID int64, day string) (*model.RoutineCompletion, error)
	RecordSettlement(rec *model.RoutineCompletion, results []model.TaskResult) (*model.RoutineCompletion, int, error)
}

// Notifier delivers a message to a parent account. Implementations must not
// fail settlement: delivery errors are their own to log.
type Notifier interface {
	Notify(userID int64, eventType, message, link string)
}

// Engine settles routine execution sessions: it guards against duplicate and
// off-schedule completions, scores every task, and persists the outcome.
type Engine struct {
	store         SettlementStore
	notifier      Notifier
	strictMetrics bool
	logger        *slog.Logger
	now           func() time.Time
}

func NewEngine(store SettlementStore, notifier Notifier, strictMetrics bool, logger *slog.Logger) *Engine {
	return &Engine{
		store:         store,
		notifier:      notifier,
		strictMetrics: strictMetrics,
		logger:        logger,
		now:           time.Now,
	}
}

// SetClock overrides the engine's clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Settle finalizes one execution session for a routine. Every task in the
// routine is scored, not just those the client reported: a task without a
// reported elapsed time defaults to its scheduled duration (full credit)
// unless the engine is in strict-metrics mode, in which case settlement is
// rejected outright.
//
// On ErrAlreadyCompleted the returned Settlement summarizes the existing
// record so callers can display it.
func (e *Engine) Settle(r *model.RoutineWithTasks, metrics []TaskMetric, requestedBonus bool, startedAt time.Time) (*Settlement, error) {
	now := e.now()
	day := DayKey(now)

	for _, m := range metrics {
		if m.ActualSeconds != nil && *m.ActualSeconds < 0 {
			return nil, fmt.Errorf("task %d: negative actual seconds: %w", m.TaskID, ErrInvalidMetrics)
		}
	}

	existing, err := e.store.GetCompletion(r.ID, r.ChildID, day)
	if err != nil {
		return nil, fmt.Errorf("check existing completion: %w", err)
	}
	if existing != nil {
		return &Settlement{
			Record:        existing,
			BonusPossible: r.BonusPoints > 0,
			BonusEligible: existing.AllWithinLimits,
		}, ErrAlreadyCompleted
	}

	// Re-validate the schedule at settlement time, not just at start time,
	// in case the routine's scheduled day changed mid-session.
	gate := IsScheduledToday(r.Routine, now)
	if !gate.Scheduled {
		return nil, &NotScheduledError{Reason: gate.Reason}
	}

	byTask := make(map[int64]TaskMetric, len(metrics))
	for _, m := range metrics {
		byTask[m.TaskID] = m
	}

	var (
		results    []model.TaskResult
		taskPoints int
		withinAll  = true
		reported   int
	)
	for _, t := range r.Tasks {
		sched := t.ScheduledSeconds()
		actual := sched
		completedAt := now

		m, ok := byTask[t.ID]
		if ok {
			reported++
			if m.ActualSeconds != nil {
				actual = *m.ActualSeconds
			} else if e.strictMetrics {
				return nil, fmt.Errorf("task %d: %w", t.ID, ErrMissingMetrics)
			}
			if m.CompletedAt != nil {
				completedAt = *m.CompletedAt
			}
		} else if e.strictMetrics {
			return nil, fmt.Errorf("task %d: %w", t.ID, ErrMissingMetrics)
		}

		points := ScoreTask(t.PointValue, sched, actual)
		taskPoints += points
		if sched > 0 && actual > sched {
			withinAll = false
		}

		results = append(results, model.TaskResult{
			TaskID:           t.ID,
			ScheduledSeconds: sched,
			ActualSeconds:    actual,
			PointsAwarded:    points,
			Stars:            StarsForTask(sched, actual),
			CompletedAt:      completedAt,
		})
	}

	allWithinLimits := withinAll && reported == len(r.Tasks)

	bonusPoints := 0
	if allWithinLimits && requestedBonus {
		bonusPoints = r.BonusPoints
	}

	rec := &model.RoutineCompletion{
		RoutineID:       r.ID,
		ChildID:         r.ChildID,
		CompletedOn:     day,
		TaskPoints:      taskPoints,
		BonusPoints:     bonusPoints,
		AllWithinLimits: allWithinLimits,
		StartedAt:       startedAt,
		CompletedAt:     now,
	}

	saved, newTotal, err := e.store.RecordSettlement(rec, results)
	if err != nil {
		if errors.Is(err, ErrDuplicateCompletion) {
			return nil, ErrDuplicateCompletion
		}
		return nil, fmt.Errorf("record settlement: %w", err)
	}

	e.logger.Info("routine settled",
		"routine_id", r.ID,
		"child_id", r.ChildID,
		"task_points", taskPoints,
		"bonus_points", bonusPoints,
		"all_within_limits", allWithinLimits,
	)

	if e.notifier != nil {
		msg := fmt.Sprintf("%s completed: %d points", r.Title, taskPoints+bonusPoints)
		if bonusPoints > 0 {
			msg = fmt.Sprintf("%s completed: %d points (incl. %d bonus)", r.Title, taskPoints+bonusPoints, bonusPoints)
		}
		e.notifier.Notify(r.CreatedBy, "routine_completed", msg, fmt.Sprintf("/routines/%d", r.ID))
	}

	return &Settlement{
		Record:         saved,
		Results:        results,
		NewTotalPoints: newTotal,
		BonusPossible:  r.BonusPoints > 0,
		BonusEligible:  allWithinLimits,
	}, nil
}

// CheckMinimumDuration enforces a task's minimum-seconds floor at the moment
// a child marks it complete. It returns false when the attempt must be
// rejected. Enforced here rather than in ScoreTask so settlement math stays
// pure.
func CheckMinimumDuration(t model.Task, elapsedSeconds int) bool {
	if !t.MinimumEnabled || t.MinimumSeconds <= 0 {
		return true
	}
	return elapsedSeconds >= t.MinimumSeconds
}
