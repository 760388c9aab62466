package store

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/rowanhart/routinely/internal/model"
)

// PointsStore is the append-only per-child points ledger. Balances are always
// sums over entries, never stored counters.
type PointsStore struct {
	db *sql.DB
}

func NewPointsStore(db *sql.DB) *PointsStore {
	return &PointsStore{db: db}
}

// AddPoints appends a ledger entry and returns the child's new total.
func (s *PointsStore) AddPoints(childID int64, delta int, reason string, routineID, rewardID *int64) (int, error) {
	var rID, rwID sql.NullInt64
	if routineID != nil {
		rID = sql.NullInt64{Int64: *routineID, Valid: true}
	}
	if rewardID != nil {
		rwID = sql.NullInt64{Int64: *rewardID, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO points_entries (child_id, delta, reason, routine_id, reward_id) VALUES (?, ?, ?, ?, ?)`,
		childID, delta, reason, rID, rwID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert points entry: %w", err)
	}
	return s.Total(childID)
}

// Total returns the child's current point total.
func (s *PointsStore) Total(childID int64) (int, error) {
	var total sql.NullInt64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(delta), 0) FROM points_entries WHERE child_id = ?`,
		childID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum points: %w", err)
	}
	return int(total.Int64), nil
}

// Balance returns the earned/spent/total breakdown for one child.
func (s *PointsStore) Balance(childID int64) (*model.PointBalance, error) {
	var earned, spent sql.NullInt64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(CASE WHEN delta > 0 THEN delta ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN delta < 0 THEN -delta ELSE 0 END), 0)
		 FROM points_entries WHERE child_id = ?`,
		childID,
	).Scan(&earned, &spent)
	if err != nil {
		return nil, fmt.Errorf("sum balance: %w", err)
	}

	var name string
	err = s.db.QueryRow(`SELECT name FROM family_members WHERE id = ?`, childID).Scan(&name)
	if err == sql.ErrNoRows {
		name = "Unknown"
	} else if err != nil {
		return nil, fmt.Errorf("get member name: %w", err)
	}

	return &model.PointBalance{
		ChildID:     childID,
		ChildName:   name,
		TotalEarned: int(earned.Int64),
		TotalSpent:  int(spent.Int64),
		Balance:     int(earned.Int64) - int(spent.Int64),
	}, nil
}

// Leaderboard returns balances for every child in the family, highest first.
func (s *PointsStore) Leaderboard(familyID int64) ([]model.PointBalance, error) {
	rows, err := s.db.Query(
		`SELECT id FROM family_members WHERE family_id = ? AND role = 'child' ORDER BY sort_order ASC, name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan child id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var balances []model.PointBalance
	for _, id := range ids {
		b, err := s.Balance(id)
		if err != nil {
			return nil, err
		}
		balances = append(balances, *b)
	}

	// Highest balance first, stable for ties.
	sort.SliceStable(balances, func(i, j int) bool {
		return balances[i].Balance > balances[j].Balance
	})
	return balances, nil
}

// History returns a child's ledger entries, newest first, up to limit.
func (s *PointsStore) History(childID int64, limit int) ([]model.PointsEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, child_id, delta, reason, routine_id, reward_id, created_at
		 FROM points_entries WHERE child_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		childID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list points entries: %w", err)
	}
	defer rows.Close()

	var entries []model.PointsEntry
	for rows.Next() {
		var e model.PointsEntry
		var rID, rwID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ChildID, &e.Delta, &e.Reason, &rID, &rwID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan points entry: %w", err)
		}
		if rID.Valid {
			e.RoutineID = &rID.Int64
		}
		if rwID.Valid {
			e.RewardID = &rwID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
