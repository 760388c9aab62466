package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rowanhart/routinely/internal/model"
)

// ErrInsufficientPoints is returned when a redemption would overdraw the
// child's balance.
var ErrInsufficientPoints = errors.New("insufficient points")

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var active int

	err := scanner.Scan(&r.ID, &r.FamilyID, &r.Title, &r.Description, &r.PointCost, &active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Active = active != 0
	return &r, nil
}

const rewardCols = `id, family_id, title, description, point_cost, active, created_at`

func (s *RewardStore) Create(familyID int64, title, description string, pointCost int, active bool) (*model.Reward, error) {
	var a int
	if active {
		a = 1
	}

	result, err := s.db.Exec(
		`INSERT INTO rewards (family_id, title, description, point_cost, active) VALUES (?, ?, ?, ?, ?)`,
		familyID, title, description, pointCost, a,
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) GetByID(id int64) (*model.Reward, error) {
	row := s.db.QueryRow(`SELECT `+rewardCols+` FROM rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

// List returns all of a family's rewards, active first, then by title.
func (s *RewardStore) List(familyID int64) ([]model.Reward, error) {
	rows, err := s.db.Query(
		`SELECT `+rewardCols+` FROM rewards WHERE family_id = ? ORDER BY active DESC, title ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Update(id int64, title, description string, pointCost int, active bool) (*model.Reward, error) {
	var a int
	if active {
		a = 1
	}

	_, err := s.db.Exec(
		`UPDATE rewards SET title = ?, description = ?, point_cost = ?, active = ? WHERE id = ?`,
		title, description, pointCost, a, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return s.GetByID(id)
}

func (s *RewardStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM rewards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}
	return nil
}

// --- Redemption methods ---

// Redeem debits the child's ledger and records the redemption in one
// transaction. The balance check happens inside the transaction so two
// concurrent redemptions cannot both spend the same points.
func (s *RewardStore) Redeem(rewardID, childID int64, pointCost int) (*model.RewardRedemption, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var balance sql.NullInt64
	if err := tx.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM points_entries WHERE child_id = ?`,
		childID,
	).Scan(&balance); err != nil {
		return nil, fmt.Errorf("check balance: %w", err)
	}
	if int(balance.Int64) < pointCost {
		return nil, ErrInsufficientPoints
	}

	result, err := tx.Exec(
		`INSERT INTO reward_redemptions (reward_id, redeemed_by, points_spent) VALUES (?, ?, ?)`,
		rewardID, childID, pointCost,
	)
	if err != nil {
		return nil, fmt.Errorf("insert redemption: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO points_entries (child_id, delta, reason, reward_id) VALUES (?, ?, ?, ?)`,
		childID, -pointCost, model.PointsReasonRedeem, rewardID,
	); err != nil {
		return nil, fmt.Errorf("insert redemption entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	row := s.db.QueryRow(
		`SELECT id, reward_id, redeemed_by, points_spent, redeemed_at FROM reward_redemptions WHERE id = ?`, id,
	)
	var r model.RewardRedemption
	if err := row.Scan(&r.ID, &r.RewardID, &r.RedeemedBy, &r.PointsSpent, &r.RedeemedAt); err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return &r, nil
}

func (s *RewardStore) ListRedemptionsByChild(childID int64) ([]model.RewardRedemption, error) {
	rows, err := s.db.Query(
		`SELECT id, reward_id, redeemed_by, points_spent, redeemed_at
		 FROM reward_redemptions WHERE redeemed_by = ? ORDER BY redeemed_at DESC`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []model.RewardRedemption
	for rows.Next() {
		var r model.RewardRedemption
		if err := rows.Scan(&r.ID, &r.RewardID, &r.RedeemedBy, &r.PointsSpent, &r.RedeemedAt); err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		redemptions = append(redemptions, r)
	}
	return redemptions, rows.Err()
}
