package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rowanhart/routinely/internal/auth"
	"github.com/rowanhart/routinely/internal/model"
	"github.com/rowanhart/routinely/internal/notify"
	"github.com/rowanhart/routinely/internal/store"
	ws "github.com/rowanhart/routinely/internal/websocket"
)

type RewardHandler struct {
	rewards  *store.RewardStore
	points   *store.PointsStore
	users    *store.UserStore
	notifier *notify.Service
	hub      *ws.Hub
	logger   *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, ps *store.PointsStore, us *store.UserStore, n *notify.Service, hub *ws.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewards: rs, points: ps, users: us, notifier: n, hub: hub, logger: logger}
}

type rewardRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PointCost   int    `json:"point_cost"`
	Active      *bool  `json:"active"`
}

func (req *rewardRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.PointCost < 1 {
		return "point_cost must be at least 1"
	}
	return ""
}

func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.rewards.List(auth.FamilyID(r.Context()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list rewards"})
		return
	}
	if rewards == nil {
		rewards = []model.Reward{}
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	reward, err := h.rewards.Create(auth.FamilyID(r.Context()), req.Title, req.Description, req.PointCost, active)
	if err != nil {
		h.logger.Error("create reward", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create reward"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("reward", "created", reward.ID, nil))
	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedReward(w, r)
	if !ok {
		return
	}

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if msg := req.validate(); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	active := existing.Active
	if req.Active != nil {
		active = *req.Active
	}

	reward, err := h.rewards.Update(existing.ID, req.Title, req.Description, req.PointCost, active)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update reward"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("reward", "updated", reward.ID, nil))
	writeJSON(w, http.StatusOK, reward)
}

func (h *RewardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.ownedReward(w, r)
	if !ok {
		return
	}

	if err := h.rewards.Delete(existing.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete reward"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("reward", "deleted", existing.ID, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Redeem spends a child's points on a reward. The balance check and the
// ledger debit happen in one transaction in the store.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	reward, ok := h.ownedReward(w, r)
	if !ok {
		return
	}
	if !reward.Active {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "reward is not active"})
		return
	}

	var req struct {
		ChildID int64 `json:"child_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.ChildID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "child_id is required"})
		return
	}

	redemption, err := h.rewards.Redeem(reward.ID, req.ChildID, reward.PointCost)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientPoints) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "not enough points"})
			return
		}
		h.logger.Error("redeem reward", "reward_id", reward.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to redeem reward"})
		return
	}

	h.hub.Broadcast(ws.NewMessage("reward", "redeemed", reward.ID, map[string]any{
		"child_id": req.ChildID,
	}))
	h.notifyParents(reward)

	writeJSON(w, http.StatusCreated, redemption)
}

func (h *RewardHandler) notifyParents(reward *model.Reward) {
	parents, err := h.users.ListByFamily(reward.FamilyID)
	if err != nil {
		h.logger.Error("list parents for redemption notice", "error", err)
		return
	}
	msg := fmt.Sprintf("%s redeemed for %d points", reward.Title, reward.PointCost)
	link := fmt.Sprintf("/rewards/%d", reward.ID)
	for _, p := range parents {
		h.notifier.Notify(p.ID, "reward_redeemed", msg, link)
	}
}

func (h *RewardHandler) Redemptions(w http.ResponseWriter, r *http.Request) {
	childID, ok := parseQueryID(r, "child_id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "child_id is required"})
		return
	}

	redemptions, err := h.rewards.ListRedemptionsByChild(childID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list redemptions"})
		return
	}
	if redemptions == nil {
		redemptions = []model.RewardRedemption{}
	}
	writeJSON(w, http.StatusOK, redemptions)
}

func (h *RewardHandler) ownedReward(w http.ResponseWriter, r *http.Request) (*model.Reward, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return nil, false
	}

	reward, err := h.rewards.GetByID(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get reward"})
		return nil, false
	}
	if reward == nil || reward.FamilyID != auth.FamilyID(r.Context()) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "reward not found"})
		return nil, false
	}
	return reward, true
}
