package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rowanhart/routinely/internal/auth"
	"github.com/rowanhart/routinely/internal/model"
	"github.com/rowanhart/routinely/internal/routine"
	"github.com/rowanhart/routinely/internal/store"
	ws "github.com/rowanhart/routinely/internal/websocket"
)

type RoutineHandler struct {
	routines *store.RoutineStore
	engine   *routine.Engine
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewRoutineHandler(rs *store.RoutineStore, engine *routine.Engine, hub *ws.Hub, logger *slog.Logger) *RoutineHandler {
	return &RoutineHandler{routines: rs, engine: engine, hub: hub, logger: logger}
}

type routineRequest struct {
	Title          string   `json:"title"`
	ChildID        int64    `json:"child_id"`
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	Recurrence     string   `json:"recurrence"`
	RecurrenceDays []string `json:"recurrence_days"`
	RoutineDate    string   `json:"routine_date"` // "YYYY-MM-DD"
	BonusPoints    int      `json:"bonus_points"`
	Tasks          []struct {
		TaskID        int64  `json:"task_id"`
		SequenceOrder int    `json:"sequence_order"`
		DependsOn     *int64 `json:"depends_on"`
	} `json:"tasks"`
}

func (req *routineRequest) validate() (*time.Time, string) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, "title is required"
	}
	if req.ChildID == 0 {
		return nil, "child_id is required"
	}
	if req.Recurrence == "" {
		req.Recurrence = model.RecurrenceNone
	}
	switch req.Recurrence {
	case model.RecurrenceNone, model.RecurrenceDaily, model.RecurrenceWeekly:
	default:
		return nil, "recurrence must be none, daily, or weekly"
	}
	if req.BonusPoints < 0 {
		return nil, "bonus_points must not be negative"
	}

	var routineDate *time.Time
	if req.RoutineDate != "" {
		d, err := time.Parse("2006-01-02", req.RoutineDate)
		if err != nil {
			return nil, "routine_date must be YYYY-MM-DD"
		}
		routineDate = &d
	}
	return routineDate, ""
}

func (req *routineRequest) taskSpecs() []store.RoutineTaskSpec {
	specs := make([]store.RoutineTaskSpec, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		specs = append(specs, store.RoutineTaskSpec{
			TaskID:        t.TaskID,
			SequenceOrder: t.SequenceOrder,
			DependsOn:     t.DependsOn,
		})
	}
	return specs
}

func (h *RoutineHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req routineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	routineDate, msg := req.validate()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	if len(req.Tasks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one task is required"})
		return
	}

	ac, _ := auth.FromContext(r.Context())
	created, err := h.routines.Create(ac.FamilyID, req.ChildID, ac.UserID, req.Title,
		req.StartTime, req.EndTime, req.Recurrence, req.RecurrenceDays, routineDate,
		req.BonusPoints, req.taskSpecs())
	if err != nil {
		if errors.Is(err, store.ErrInvalidTaskSpecs) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.logger.Error("create routine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create routine"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("routine", "created", created.ID, nil))
	writeJSON(w, http.StatusCreated, created)
}

func (h *RoutineHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		routines []model.Routine
		err      error
	)
	if childID, ok := parseQueryID(r, "child_id"); ok {
		routines, err = h.routines.ListByChild(childID)
	} else {
		routines, err = h.routines.ListByFamily(auth.FamilyID(r.Context()))
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list routines"})
		return
	}
	if routines == nil {
		routines = []model.Routine{}
	}
	writeJSON(w, http.StatusOK, routines)
}

func (h *RoutineHandler) Get(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.ownedRoutine(w, r)
	if !ok {
		return
	}

	statuses, err := h.routines.ListTaskStatuses(rt.ID, routine.DayKey(time.Now()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load task statuses"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"routine":  rt,
		"statuses": statuses,
	})
}

func (h *RoutineHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedRoutine(w, r)
	if !ok {
		return
	}

	var req routineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	routineDate, msg := req.validate()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	updated, err := h.routines.Update(existing.ID, req.Title, req.StartTime, req.EndTime,
		req.Recurrence, req.RecurrenceDays, routineDate, req.BonusPoints, req.ChildID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update routine"})
		return
	}

	if len(req.Tasks) > 0 {
		if err := h.routines.SetTasks(existing.ID, req.taskSpecs()); err != nil {
			if errors.Is(err, store.ErrInvalidTaskSpecs) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update routine tasks"})
			return
		}
	}

	h.hub.Broadcast(ws.NewMessage("routine", "updated", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// SetTasks replaces a routine's task list, used by the drag-and-drop editor.
func (h *RoutineHandler) SetTasks(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedRoutine(w, r)
	if !ok {
		return
	}

	var req routineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.Tasks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tasks are required"})
		return
	}

	if err := h.routines.SetTasks(existing.ID, req.taskSpecs()); err != nil {
		if errors.Is(err, store.ErrInvalidTaskSpecs) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to set routine tasks"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("routine", "updated", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoutineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedRoutine(w, r)
	if !ok {
		return
	}

	if err := h.routines.Delete(existing.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete routine"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("routine", "deleted", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Today lists a child's routines that are scheduled for the current day,
// with their per-day task statuses and whether the start window is open.
func (h *RoutineHandler) Today(w http.ResponseWriter, r *http.Request) {
	childID, ok := parseQueryID(r, "child_id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "child_id is required"})
		return
	}

	routines, err := h.routines.ListByChild(childID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list routines"})
		return
	}

	now := time.Now()
	day := routine.DayKey(now)
	familyID := auth.FamilyID(r.Context())

	type todayEntry struct {
		model.Routine
		CanStart bool                              `json:"can_start"`
		Statuses map[int64]model.RoutineTaskStatus `json:"statuses"`
	}
	entries := []todayEntry{}
	for _, rt := range routines {
		if rt.FamilyID != familyID {
			continue
		}
		if gate := routine.IsScheduledToday(rt, now); !gate.Scheduled {
			continue
		}
		statuses, err := h.routines.ListTaskStatuses(rt.ID, day)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load task statuses"})
			return
		}
		entries = append(entries, todayEntry{
			Routine:  rt,
			CanStart: routine.CanStartAt(rt, now),
			Statuses: statuses,
		})
	}

	writeJSON(w, http.StatusOK, entries)
}

// Start opens an execution session. It rejects routines not scheduled today
// and routines whose start window has not opened yet.
func (h *RoutineHandler) Start(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.ownedRoutine(w, r)
	if !ok {
		return
	}

	now := time.Now()
	if gate := routine.IsScheduledToday(rt.Routine, now); !gate.Scheduled {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":     "routine is not scheduled today",
			"scheduled": gate.Reason,
		})
		return
	}
	if !routine.CanStartAt(rt.Routine, now) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "routine cannot be started yet",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "started",
		"started_at": now,
		"routine":    rt,
	})
}

// CompleteTask marks one task done for today, enforcing the task's
// minimum-duration floor when enabled.
func (h *RoutineHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.ownedRoutine(w, r)
	if !ok {
		return
	}

	taskID, err := parsePathID(r, "task_id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task id"})
		return
	}

	var task *model.RoutineTask
	for i := range rt.Tasks {
		if rt.Tasks[i].ID == taskID {
			task = &rt.Tasks[i]
			break
		}
	}
	if task == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not in routine"})
		return
	}

	var req struct {
		ElapsedSeconds int `json:"elapsed_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if !routine.CheckMinimumDuration(task.Task, req.ElapsedSeconds) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":           "task finished too quickly",
			"minimum_seconds": task.MinimumSeconds,
			"elapsed_seconds": req.ElapsedSeconds,
		})
		return
	}

	now := time.Now()
	if err := h.routines.SetTaskStatus(rt.ID, taskID, routine.DayKey(now), model.TaskStatusCompleted, &now); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to record task status"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("routine_task", "completed", taskID, map[string]any{
		"routine_id": rt.ID,
	}))
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// Reset discards today's in-progress state for a routine, returning every
// task to pending. Settled completions are untouched.
func (h *RoutineHandler) Reset(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.ownedRoutine(w, r)
	if !ok {
		return
	}

	if err := h.routines.ResetDay(rt.ID, routine.DayKey(time.Now())); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to reset routine"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("routine", "reset", rt.ID, nil))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

type completeRequest struct {
	TaskMetrics []struct {
		ID                  int64  `json:"id"`
		ActualSeconds       *int   `json:"actual_seconds"`
		ScheduledSeconds    *int   `json:"scheduled_seconds"`
		CompletedAtMs       *int64 `json:"completed_at_ms"`
		StatusScreenSeconds *int   `json:"status_screen_seconds"`
	} `json:"task_metrics"`
	FlowStartTs   int64 `json:"flow_start_ts"` // epoch ms
	FlowEndTs     int64 `json:"flow_end_ts"`
	OvertimeCount int   `json:"overtime_count"` // advisory, logged only
	RequestBonus  *bool `json:"request_bonus"`  // defaults to true
}

type completeResponse struct {
	Status            string             `json:"status"`
	Message           string             `json:"message,omitempty"`
	TaskPointsAwarded int                `json:"task_points_awarded"`
	BonusPointsAward  int                `json:"bonus_points_awarded"`
	BonusPossible     bool               `json:"bonus_possible"`
	BonusEligible     bool               `json:"bonus_eligible"`
	NewTotalPoints    int                `json:"new_total_points"`
	TaskResults       []model.TaskResult `json:"task_results"`
	AllWithinLimits   bool               `json:"all_within_limits"`
}

// Complete settles a routine execution session. The response always carries a
// status field; clients switch on it rather than on the HTTP code.
func (h *RoutineHandler) Complete(w http.ResponseWriter, r *http.Request) {
	rt, ok := h.ownedRoutine(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, completeResponse{Status: "error", Message: "invalid JSON"})
		return
	}

	if req.FlowStartTs < 0 || req.FlowEndTs < 0 {
		writeJSON(w, http.StatusBadRequest, completeResponse{Status: "error", Message: "flow timestamps must be non-negative"})
		return
	}

	metrics := make([]routine.TaskMetric, 0, len(req.TaskMetrics))
	for _, m := range req.TaskMetrics {
		if (m.ActualSeconds != nil && *m.ActualSeconds < 0) ||
			(m.ScheduledSeconds != nil && *m.ScheduledSeconds < 0) ||
			(m.StatusScreenSeconds != nil && *m.StatusScreenSeconds < 0) ||
			(m.CompletedAtMs != nil && *m.CompletedAtMs < 0) {
			writeJSON(w, http.StatusBadRequest, completeResponse{Status: "error", Message: "task metric durations must be non-negative"})
			return
		}
		tm := routine.TaskMetric{TaskID: m.ID, ActualSeconds: m.ActualSeconds}
		if m.CompletedAtMs != nil {
			t := time.UnixMilli(*m.CompletedAtMs)
			tm.CompletedAt = &t
		}
		metrics = append(metrics, tm)
	}

	startedAt := time.Now()
	if req.FlowStartTs > 0 {
		startedAt = time.UnixMilli(req.FlowStartTs)
	}

	requestBonus := true
	if req.RequestBonus != nil {
		requestBonus = *req.RequestBonus
	}

	if req.OvertimeCount > 0 {
		h.logger.Info("routine completed with overtime", "routine_id", rt.ID, "overtime_count", req.OvertimeCount)
	}

	settlement, err := h.engine.Settle(rt, metrics, requestBonus, startedAt)
	if err != nil {
		h.writeSettleError(w, rt, settlement, err)
		return
	}

	h.hub.Broadcast(ws.NewMessage("routine", "completed", rt.ID, map[string]any{
		"child_id":     rt.ChildID,
		"total_points": settlement.Record.TaskPoints + settlement.Record.BonusPoints,
	}))

	writeJSON(w, http.StatusOK, completeResponse{
		Status:            "ok",
		TaskPointsAwarded: settlement.Record.TaskPoints,
		BonusPointsAward:  settlement.Record.BonusPoints,
		BonusPossible:     settlement.BonusPossible,
		BonusEligible:     settlement.BonusEligible,
		NewTotalPoints:    settlement.NewTotalPoints,
		TaskResults:       settlement.Results,
		AllWithinLimits:   settlement.Record.AllWithinLimits,
	})
}

func (h *RoutineHandler) writeSettleError(w http.ResponseWriter, rt *model.RoutineWithTasks, settlement *routine.Settlement, err error) {
	var notScheduled *routine.NotScheduledError
	switch {
	case errors.Is(err, routine.ErrAlreadyCompleted):
		resp := completeResponse{Status: "already_completed"}
		if settlement != nil && settlement.Record != nil {
			resp.TaskPointsAwarded = settlement.Record.TaskPoints
			resp.BonusPointsAward = settlement.Record.BonusPoints
			resp.AllWithinLimits = settlement.Record.AllWithinLimits
			resp.BonusPossible = settlement.BonusPossible
			resp.BonusEligible = settlement.BonusEligible
		}
		writeJSON(w, http.StatusOK, resp)
	case errors.As(err, &notScheduled):
		writeJSON(w, http.StatusOK, completeResponse{
			Status:  "not_today",
			Message: notScheduled.Error(),
		})
	case errors.Is(err, routine.ErrDuplicateCompletion):
		writeJSON(w, http.StatusOK, completeResponse{Status: "duplicate"})
	case errors.Is(err, routine.ErrMissingMetrics), errors.Is(err, routine.ErrInvalidMetrics):
		writeJSON(w, http.StatusBadRequest, completeResponse{Status: "error", Message: err.Error()})
	default:
		h.logger.Error("settle routine", "routine_id", rt.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, completeResponse{Status: "error", Message: "settlement failed"})
	}
}

func (h *RoutineHandler) ownedRoutine(w http.ResponseWriter, r *http.Request) (*model.RoutineWithTasks, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}

	rt, err := h.routines.GetWithTasks(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get routine"})
		return nil, false
	}
	if rt == nil || rt.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "routine not found"})
		return nil, false
	}
	return rt, true
}
