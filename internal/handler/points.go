package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rowanhart/routinely/internal/auth"
	"github.com/rowanhart/routinely/internal/model"
	"github.com/rowanhart/routinely/internal/store"
	ws "github.com/rowanhart/routinely/internal/websocket"
)

const defaultHistoryLimit = 50

type PointsHandler struct {
	points  *store.PointsStore
	members *store.FamilyMemberStore
	hub     *ws.Hub
	logger  *slog.Logger
}

func NewPointsHandler(ps *store.PointsStore, ms *store.FamilyMemberStore, hub *ws.Hub, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{points: ps, members: ms, hub: hub, logger: logger}
}

// Balance returns one child's earned/spent/balance summary.
func (h *PointsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownedChild(w, r)
	if !ok {
		return
	}

	balance, err := h.points.Balance(child.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get balance"})
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Leaderboard ranks the family's children by point balance.
func (h *PointsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.points.Leaderboard(auth.FamilyID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to build leaderboard"})
		return
	}
	if board == nil {
		board = []model.PointBalance{}
	}
	writeJSON(w, http.StatusOK, board)
}

// History returns a child's recent ledger entries, newest first.
func (h *PointsHandler) History(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownedChild(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if n, ok := parseQueryID(r, "limit"); ok && n > 0 && n <= 500 {
		limit = int(n)
	}

	entries, err := h.points.History(child.ID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get history"})
		return
	}
	if entries == nil {
		entries = []model.PointsEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Adjust applies a manual signed point adjustment, logged in the ledger.
func (h *PointsHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	child, ok := h.ownedChild(w, r)
	if !ok {
		return
	}

	var req struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Delta == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "delta must not be zero"})
		return
	}

	total, err := h.points.AddPoints(child.ID, req.Delta, model.PointsReasonManual, nil, nil)
	if err != nil {
		h.logger.Error("adjust points", "child_id", child.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to adjust points"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("points", "adjusted", child.ID, map[string]any{
		"delta": req.Delta,
	}))
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "adjusted",
		"new_total_points": total,
	})
}

func (h *PointsHandler) ownedChild(w http.ResponseWriter, r *http.Request) (*model.FamilyMember, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}

	member, err := h.members.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get family member"})
		return nil, false
	}
	if member == nil || member.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "family member not found"})
		return nil, false
	}
	return member, true
}
