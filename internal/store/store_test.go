package store

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/rowanhart/routinely/internal/database"
	"github.com/rowanhart/routinely/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is a family with one parent account and one child, the minimum most
// store tests need to satisfy foreign keys.
type fixture struct {
	db    *sql.DB
	user  *model.User
	child *model.FamilyMember
}

func setupFamily(t *testing.T, db *sql.DB) *fixture {
	t.Helper()

	user, err := NewUserStore(db).CreateWithFamily("Hart Family", "parent@example.com", "Rowan", "not-a-real-hash")
	if err != nil {
		t.Fatalf("create user with family: %v", err)
	}

	child, err := NewFamilyMemberStore(db).Create(user.FamilyID, "Finn", model.RoleChild, "#3B82F6", "🦊", 1)
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	return &fixture{db: db, user: user, child: child}
}

// createRoutine builds a daily routine with n timed tasks, each worth
// pointValue points with a limit of minutes, plus a bonus.
func createRoutine(t *testing.T, f *fixture, title string, n, pointValue, minutes, bonus int) *model.RoutineWithTasks {
	t.Helper()

	ts := NewTaskStore(f.db)
	specs := make([]RoutineTaskSpec, 0, n)
	for i := 0; i < n; i++ {
		task, err := ts.Create(f.user.FamilyID, fmt.Sprintf("%s task %d", title, i+1), "⭐", minutes, pointValue, 0, false)
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		specs = append(specs, RoutineTaskSpec{TaskID: task.ID, SequenceOrder: i + 1})
	}

	rs := NewRoutineStore(f.db)
	r, err := rs.Create(f.user.FamilyID, f.child.ID, f.user.ID, title, "", "", model.RecurrenceDaily, nil, nil, bonus, specs)
	if err != nil {
		t.Fatalf("create routine: %v", err)
	}

	rt, err := rs.GetWithTasks(r.ID)
	if err != nil {
		t.Fatalf("get routine with tasks: %v", err)
	}
	if rt == nil {
		t.Fatal("routine not found after create")
	}
	return rt
}
