package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/alfredjeanlab/foundry/internal/model"
	"github.com/alfredjeanlab/foundry/internal/taskstore"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var unitRowColumns = []string{"id", "title", "body", "state", "created_at", "updated_at"}

func addUnitRow(rows *sqlmock.Rows, id int, title, state string, now time.Time) *sqlmock.Rows {
	return rows.AddRow(id, title, nil, state, now, now)
}

func expectLabels(mock sqlmock.Sqlmock, id int, labels ...string) {
	rows := sqlmock.NewRows([]string{"label"})
	for _, l := range labels {
		rows.AddRow(l)
	}
	mock.ExpectQuery(`SELECT label FROM unit_labels WHERE unit_id = \$1`).
		WithArgs(id).WillReturnRows(rows)
}

func TestGetUnit(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM units WHERE id = \$1`).
		WithArgs(4).
		WillReturnRows(addUnitRow(sqlmock.NewRows(unitRowColumns), 4, "fix parser", "open", now))
	expectLabels(mock, 4, "assignee:alice", "status:pending")

	u, err := queryGetUnit(ctx, db, 4)
	if err != nil {
		t.Fatalf("queryGetUnit: %v", err)
	}
	if u.ID != 4 || u.Title != "fix parser" || u.State != model.UnitOpen {
		t.Errorf("unit = %+v", u)
	}
	if u.Assignee() != "alice" || u.Status() != "pending" {
		t.Errorf("labels = %v", u.Labels)
	}
}

func TestGetUnitNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM units WHERE id = \$1`).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows(unitRowColumns))

	_, err := queryGetUnit(context.Background(), db, 99)
	if err != taskstore.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListUnitsFilters(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM units WHERE state = \$1 AND EXISTS .+ AND NOT EXISTS .+ ORDER BY id ASC`).
		WithArgs("open", "status:pending").
		WillReturnRows(addUnitRow(sqlmock.NewRows(unitRowColumns), 1, "task", "open", now))
	expectLabels(mock, 1, "status:pending")

	units, err := queryListUnits(ctx, db, taskstore.UnitFilter{
		Labels:     []string{"status:pending"},
		Unassigned: true,
	})
	if err != nil {
		t.Fatalf("queryListUnits: %v", err)
	}
	if len(units) != 1 || units[0].ID != 1 {
		t.Errorf("units = %v", units)
	}
}

func TestCreateUnit(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO units .+ RETURNING`).
		WithArgs("new task", sqlmock.AnyArg()).
		WillReturnRows(addUnitRow(sqlmock.NewRows(unitRowColumns), 10, "new task", "open", now))
	mock.ExpectExec(`INSERT INTO unit_labels`).
		WithArgs(10, "status:pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := queryCreateUnit(ctx, db, "new task", "details", []string{"status:pending"})
	if err != nil {
		t.Fatalf("queryCreateUnit: %v", err)
	}
	if u.ID != 10 || len(u.Labels) != 1 {
		t.Errorf("unit = %+v", u)
	}
}

func TestUpdateLabels(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM units WHERE id = \$1`).
		WithArgs(4).
		WillReturnRows(addUnitRow(sqlmock.NewRows(unitRowColumns), 4, "task", "open", now))
	expectLabels(mock, 4, "status:pending")
	mock.ExpectExec(`INSERT INTO unit_labels`).
		WithArgs(4, "status:in-progress").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM unit_labels WHERE unit_id = \$1 AND label = \$2`).
		WithArgs(4, "status:pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE units SET updated_at = NOW\(\) WHERE id = \$1`).
		WithArgs(4).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := queryUpdateLabels(ctx, db, 4, []string{"status:in-progress"}, []string{"status:pending"})
	if err != nil {
		t.Fatalf("queryUpdateLabels: %v", err)
	}
}

func TestCloseUnitNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE units SET state = 'closed'`).
		WithArgs(99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := queryCloseUnit(context.Background(), db, 99); err != taskstore.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListOpenChangeSets(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "title", "body", "branch", "author", "merged", "closed", "review_state", "created_at"}).
		AddRow(3, "fix", nil, "task-3", "alice", false, false, "approved", now)
	mock.ExpectQuery(`SELECT .+ FROM change_sets`).WillReturnRows(rows)

	sets, err := queryListOpenChangeSets(context.Background(), db)
	if err != nil {
		t.Fatalf("queryListOpenChangeSets: %v", err)
	}
	if len(sets) != 1 || sets[0].Branch != "task-3" {
		t.Errorf("sets = %v", sets)
	}
}

func TestGetReviewState(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT review_state FROM change_sets WHERE id = \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"review_state"}).AddRow("changes_requested"))

	state, err := queryGetReviewState(context.Background(), db, 3)
	if err != nil {
		t.Fatalf("queryGetReviewState: %v", err)
	}
	if state != model.ReviewChangesRequested {
		t.Errorf("state = %q", state)
	}
}

func TestMerge(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE change_sets SET merged = TRUE WHERE id = \$1`).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryMerge(context.Background(), db, 3); err != nil {
		t.Fatalf("queryMerge: %v", err)
	}
}

func TestScanHelpers(t *testing.T) {
	if nullString("").Valid {
		t.Error("nullString(\"\") should be invalid")
	}
	if ns := nullString("hello"); !ns.Valid || ns.String != "hello" {
		t.Errorf("nullString(\"hello\") = %v", ns)
	}
}
