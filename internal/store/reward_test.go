package store

import (
	"errors"
	"testing"

	"github.com/rowanhart/routinely/internal/model"
)

func TestRewardCRUD(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rs := NewRewardStore(db)

	reward, err := rs.Create(f.user.FamilyID, "Movie night", "Pick the movie", 50, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if reward.PointCost != 50 || !reward.Active {
		t.Errorf("reward = %+v, want cost 50 active", reward)
	}

	updated, err := rs.Update(reward.ID, "Movie night", "Pick the movie", 40, false)
	if err != nil {
		t.Fatalf("update reward: %v", err)
	}
	if updated.PointCost != 40 || updated.Active {
		t.Errorf("update did not stick: %+v", updated)
	}

	rewards, err := rs.List(f.user.FamilyID)
	if err != nil {
		t.Fatalf("list rewards: %v", err)
	}
	if len(rewards) != 1 {
		t.Fatalf("expected 1 reward, got %d", len(rewards))
	}

	if err := rs.Delete(reward.ID); err != nil {
		t.Fatalf("delete reward: %v", err)
	}
	got, err := rs.GetByID(reward.ID)
	if err != nil {
		t.Fatalf("get deleted reward: %v", err)
	}
	if got != nil {
		t.Error("expected deleted reward to be gone")
	}
}

func TestRewardListActiveFirst(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rs := NewRewardStore(db)

	if _, err := rs.Create(f.user.FamilyID, "Archived treat", "", 10, false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := rs.Create(f.user.FamilyID, "Zoo trip", "", 100, true); err != nil {
		t.Fatalf("create: %v", err)
	}

	rewards, err := rs.List(f.user.FamilyID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rewards) != 2 {
		t.Fatalf("expected 2 rewards, got %d", len(rewards))
	}
	if !rewards[0].Active {
		t.Error("expected active reward listed first")
	}
}

func TestRedeemDebitsLedger(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rs := NewRewardStore(db)
	ps := NewPointsStore(db)

	reward, err := rs.Create(f.user.FamilyID, "Movie night", "", 30, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}

	if _, err := ps.AddPoints(f.child.ID, 50, model.PointsReasonManual, nil, nil); err != nil {
		t.Fatalf("seed points: %v", err)
	}

	redemption, err := rs.Redeem(reward.ID, f.child.ID, reward.PointCost)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if redemption.PointsSpent != 30 || redemption.RedeemedBy != f.child.ID {
		t.Errorf("redemption = %+v", redemption)
	}

	balance, err := ps.Balance(f.child.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Balance != 20 {
		t.Errorf("balance = %d, want 20", balance.Balance)
	}
	if balance.TotalSpent != 30 {
		t.Errorf("spent = %d, want 30", balance.TotalSpent)
	}

	redemptions, err := rs.ListRedemptionsByChild(f.child.ID)
	if err != nil {
		t.Fatalf("list redemptions: %v", err)
	}
	if len(redemptions) != 1 {
		t.Fatalf("expected 1 redemption, got %d", len(redemptions))
	}
}

func TestRedeemInsufficientPoints(t *testing.T) {
	db := setupTestDB(t)
	f := setupFamily(t, db)
	rs := NewRewardStore(db)
	ps := NewPointsStore(db)

	reward, err := rs.Create(f.user.FamilyID, "Big prize", "", 100, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}

	if _, err := ps.AddPoints(f.child.ID, 40, model.PointsReasonManual, nil, nil); err != nil {
		t.Fatalf("seed points: %v", err)
	}

	_, err = rs.Redeem(reward.ID, f.child.ID, reward.PointCost)
	if !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}

	// Nothing spent, nothing recorded.
	total, err := ps.Total(f.child.ID)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 40 {
		t.Errorf("total = %d, want 40", total)
	}
	redemptions, err := rs.ListRedemptionsByChild(f.child.ID)
	if err != nil {
		t.Fatalf("list redemptions: %v", err)
	}
	if len(redemptions) != 0 {
		t.Errorf("expected no redemptions, got %d", len(redemptions))
	}
}
