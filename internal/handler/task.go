package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rowanhart/routinely/internal/auth"
	"github.com/rowanhart/routinely/internal/model"
	"github.com/rowanhart/routinely/internal/store"
)

type TaskHandler struct {
	store  *store.TaskStore
	logger *slog.Logger
}

func NewTaskHandler(s *store.TaskStore, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{store: s, logger: logger}
}

type taskRequest struct {
	Title            string `json:"title"`
	Icon             string `json:"icon"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	PointValue       int    `json:"point_value"`
	MinimumSeconds   int    `json:"minimum_seconds"`
	MinimumEnabled   bool   `json:"minimum_enabled"`
}

func (req *taskRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.TimeLimitMinutes < 0 {
		return "time_limit_minutes must not be negative"
	}
	if req.PointValue < 0 {
		return "point_value must not be negative"
	}
	if req.MinimumSeconds < 0 {
		return "minimum_seconds must not be negative"
	}
	return ""
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.store.ListByFamily(auth.FamilyID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list tasks"})
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := h.ownedTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	task, err := h.store.Create(auth.FamilyID(r.Context()), req.Title, req.Icon,
		req.TimeLimitMinutes, req.PointValue, req.MinimumSeconds, req.MinimumEnabled)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create task"})
		return
	}

	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedTask(w, r)
	if !ok {
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	task, err := h.store.Update(existing.ID, req.Title, req.Icon,
		req.TimeLimitMinutes, req.PointValue, req.MinimumSeconds, req.MinimumEnabled)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update task"})
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedTask(w, r)
	if !ok {
		return
	}

	refs, err := h.store.CountRoutineReferences(existing.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check task usage"})
		return
	}
	if refs > 0 {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "task is used by one or more routines"})
		return
	}

	if err := h.store.Delete(existing.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete task"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) ownedTask(w http.ResponseWriter, r *http.Request) (*model.Task, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}

	task, err := h.store.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get task"})
		return nil, false
	}
	if task == nil || task.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return nil, false
	}
	return task, true
}
