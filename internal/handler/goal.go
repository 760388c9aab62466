package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rowanhart/routinely/internal/auth"
	"github.com/rowanhart/routinely/internal/model"
	"github.com/rowanhart/routinely/internal/store"
	ws "github.com/rowanhart/routinely/internal/websocket"
)

type GoalHandler struct {
	goals  *store.GoalStore
	points *store.PointsStore
	hub    *ws.Hub
	logger *slog.Logger
}

func NewGoalHandler(gs *store.GoalStore, ps *store.PointsStore, hub *ws.Hub, logger *slog.Logger) *GoalHandler {
	return &GoalHandler{goals: gs, points: ps, hub: hub, logger: logger}
}

type goalRequest struct {
	Title         string `json:"title"`
	ChildID       int64  `json:"child_id"`
	GoalType      string `json:"goal_type"`
	TargetCount   int    `json:"target_count"`
	WindowDays    int    `json:"window_days"`
	WindowStart   string `json:"window_start"` // "YYYY-MM-DD"
	WindowEnd     string `json:"window_end"`
	RoutineID     *int64 `json:"routine_id"`
	TaskID        *int64 `json:"task_id"`
	AwardType     string `json:"award_type"`
	AwardPoints   int    `json:"award_points"`
	AwardRewardID *int64 `json:"award_reward_id"`
}

func (req *goalRequest) toModel(familyID int64) (*model.Goal, string) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, "title is required"
	}
	if req.ChildID == 0 {
		return nil, "child_id is required"
	}

	switch req.GoalType {
	case model.GoalTypeManual, model.GoalTypeRoutineStreak, model.GoalTypeRoutineCount, model.GoalTypeTaskQuota:
	default:
		return nil, "goal_type must be manual, routine_streak, routine_count, or task_quota"
	}
	if req.GoalType == model.GoalTypeTaskQuota && req.TaskID == nil {
		return nil, "task_quota goals require task_id"
	}
	if req.TargetCount < 1 {
		return nil, "target_count must be at least 1"
	}

	if req.AwardType == "" {
		req.AwardType = model.GoalAwardPoints
	}
	switch req.AwardType {
	case model.GoalAwardPoints, model.GoalAwardReward, model.GoalAwardBoth:
	default:
		return nil, "award_type must be points, reward, or both"
	}
	if req.AwardType != model.GoalAwardPoints && req.AwardRewardID == nil {
		return nil, "reward awards require award_reward_id"
	}

	g := &model.Goal{
		FamilyID:      familyID,
		ChildID:       req.ChildID,
		Title:         req.Title,
		GoalType:      req.GoalType,
		TargetCount:   req.TargetCount,
		WindowDays:    req.WindowDays,
		RoutineID:     req.RoutineID,
		TaskID:        req.TaskID,
		AwardType:     req.AwardType,
		AwardPoints:   req.AwardPoints,
		AwardRewardID: req.AwardRewardID,
	}

	if req.WindowStart != "" {
		d, err := time.Parse("2006-01-02", req.WindowStart)
		if err != nil {
			return nil, "window_start must be YYYY-MM-DD"
		}
		g.WindowStart = &d
	}
	if req.WindowEnd != "" {
		d, err := time.Parse("2006-01-02", req.WindowEnd)
		if err != nil {
			return nil, "window_end must be YYYY-MM-DD"
		}
		g.WindowEnd = &d
	}
	return g, ""
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	g, msg := req.toModel(auth.FamilyID(r.Context()))
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	created, err := h.goals.Create(g)
	if err != nil {
		h.logger.Error("create goal", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create goal"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("goal", "created", created.ID, nil))
	writeJSON(w, http.StatusCreated, created)
}

// List returns goals with their computed progress, optionally scoped to one
// child via ?child_id=.
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		goals []model.Goal
		err   error
	)
	if childID, ok := parseQueryID(r, "child_id"); ok {
		goals, err = h.goals.ListByChild(childID)
	} else {
		goals, err = h.goals.ListByFamily(auth.FamilyID(r.Context()))
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list goals"})
		return
	}

	familyID := auth.FamilyID(r.Context())
	now := time.Now()
	progress := []model.GoalProgress{}
	for i := range goals {
		if goals[i].FamilyID != familyID {
			continue
		}
		p, err := h.goals.Progress(&goals[i], now)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute goal progress"})
			return
		}
		progress = append(progress, *p)
	}

	writeJSON(w, http.StatusOK, progress)
}

func (h *GoalHandler) Progress(w http.ResponseWriter, r *http.Request) {
	goal, ok := h.ownedGoal(w, r)
	if !ok {
		return
	}

	p, err := h.goals.Progress(goal, time.Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute goal progress"})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedGoal(w, r)
	if !ok {
		return
	}

	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	g, msg := req.toModel(existing.FamilyID)
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}
	g.ID = existing.ID
	g.ManualCount = existing.ManualCount

	updated, err := h.goals.Update(g)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update goal"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("goal", "updated", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedGoal(w, r)
	if !ok {
		return
	}

	if err := h.goals.Delete(existing.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete goal"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("goal", "deleted", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Increment bumps a manual goal's counter by one.
func (h *GoalHandler) Increment(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedGoal(w, r)
	if !ok {
		return
	}

	if existing.GoalType != model.GoalTypeManual {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "only manual goals can be incremented"})
		return
	}

	updated, err := h.goals.IncrementManual(existing.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to increment goal"})
		return
	}

	p, err := h.goals.Progress(updated, time.Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute goal progress"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("goal", "updated", updated.ID, nil))
	writeJSON(w, http.StatusOK, p)
}

// Award grants an achieved goal's point award to the child and logs it in the
// ledger. Reward-type awards are fulfilled by redeeming the linked reward
// separately; this endpoint only moves points.
func (h *GoalHandler) Award(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedGoal(w, r)
	if !ok {
		return
	}

	p, err := h.goals.Progress(existing, time.Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to compute goal progress"})
		return
	}
	if !p.Achieved {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "goal is not achieved yet"})
		return
	}
	if existing.AwardType == model.GoalAwardReward || existing.AwardPoints <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "goal has no point award"})
		return
	}
	if existing.AwardedAt != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "goal has already been awarded"})
		return
	}

	// Claim the award before paying out so a double submit cannot pay twice.
	claimed, err := h.goals.MarkAwarded(existing.ID)
	if err != nil {
		h.logger.Error("mark goal awarded", "goal_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to award goal"})
		return
	}
	if !claimed {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "goal has already been awarded"})
		return
	}

	total, err := h.points.AddPoints(existing.ChildID, existing.AwardPoints, model.PointsReasonGoal, nil, nil)
	if err != nil {
		h.logger.Error("award goal points", "goal_id", existing.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to award points"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("goal", "awarded", existing.ID, map[string]any{
		"child_id": existing.ChildID,
		"points":   existing.AwardPoints,
	}))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "awarded",
		"points_awarded":   existing.AwardPoints,
		"new_total_points": total,
	})
}

func (h *GoalHandler) ownedGoal(w http.ResponseWriter, r *http.Request) (*model.Goal, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}

	goal, err := h.goals.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get goal"})
		return nil, false
	}
	if goal == nil || goal.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "goal not found"})
		return nil, false
	}
	return goal, true
}
