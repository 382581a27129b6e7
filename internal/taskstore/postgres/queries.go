package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alfredjeanlab/foundry/internal/model"
	"github.com/alfredjeanlab/foundry/internal/taskstore"
)

// unitColumns is the column list used for SELECT statements on the units table.
const unitColumns = `id, title, body, state, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateUnit(ctx context.Context, db executor, title, body string, labels []string) (*model.WorkUnit, error) {
	row := db.QueryRowContext(ctx, `
		INSERT INTO units (title, body, state)
		VALUES ($1, $2, 'open')
		RETURNING `+unitColumns,
		title, nullString(body),
	)
	u, err := scanUnit(row)
	if err != nil {
		return nil, err
	}

	for _, l := range labels {
		if err := queryAddLabel(ctx, db, u.ID, l); err != nil {
			return nil, err
		}
	}
	u.Labels = append([]string(nil), labels...)
	return u, nil
}

func queryGetUnit(ctx context.Context, db executor, id int) (*model.WorkUnit, error) {
	row := db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = $1`, id)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, taskstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	labels, err := queryGetLabels(ctx, db, id)
	if err != nil {
		return nil, err
	}
	u.Labels = labels
	return u, nil
}

func queryListUnits(ctx context.Context, db executor, filter taskstore.UnitFilter) ([]*model.WorkUnit, error) {
	state := filter.State
	if state == "" {
		state = model.UnitOpen
	}

	whereClauses := []string{"state = $1"}
	args := []any{string(state)}
	argIdx := 1

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	for _, label := range filter.Labels {
		p := nextArg()
		whereClauses = append(whereClauses,
			fmt.Sprintf("EXISTS (SELECT 1 FROM unit_labels WHERE unit_labels.unit_id = units.id AND unit_labels.label = %s)", p))
		args = append(args, label)
	}

	if filter.Unassigned {
		whereClauses = append(whereClauses,
			"NOT EXISTS (SELECT 1 FROM unit_labels WHERE unit_labels.unit_id = units.id AND unit_labels.label LIKE 'assignee:%')")
	}

	query := `SELECT ` + unitColumns + ` FROM units WHERE ` +
		strings.Join(whereClauses, " AND ") + ` ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units, err := scanUnits(rows)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		labels, err := queryGetLabels(ctx, db, u.ID)
		if err != nil {
			return nil, err
		}
		u.Labels = labels
	}
	return units, nil
}

func queryUpdateLabels(ctx context.Context, db executor, id int, add, remove []string) error {
	if _, err := queryGetUnit(ctx, db, id); err != nil {
		return err
	}
	for _, l := range add {
		if err := queryAddLabel(ctx, db, id, l); err != nil {
			return err
		}
	}
	for _, l := range remove {
		_, err := db.ExecContext(ctx,
			`DELETE FROM unit_labels WHERE unit_id = $1 AND label = $2`, id, l)
		if err != nil {
			return err
		}
	}
	_, err := db.ExecContext(ctx, `UPDATE units SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

func queryAddLabel(ctx context.Context, db executor, id int, label string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO unit_labels (unit_id, label) VALUES ($1, $2)
		ON CONFLICT (unit_id, label) DO NOTHING`,
		id, label)
	return err
}

func queryGetLabels(ctx context.Context, db executor, id int) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT label FROM unit_labels WHERE unit_id = $1 ORDER BY label`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func queryAddComment(ctx context.Context, db executor, id int, body string) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO unit_comments (unit_id, body)
		SELECT $1, $2 WHERE EXISTS (SELECT 1 FROM units WHERE id = $1)`,
		id, body)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return taskstore.ErrNotFound
	}
	return nil
}

func queryCloseUnit(ctx context.Context, db executor, id int) error {
	res, err := db.ExecContext(ctx,
		`UPDATE units SET state = 'closed', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return taskstore.ErrNotFound
	}
	return nil
}

const changeSetColumns = `id, title, body, branch, author, merged, closed, review_state, created_at`

func queryListOpenChangeSets(ctx context.Context, db executor) ([]*model.ChangeSet, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+changeSetColumns+` FROM change_sets
		WHERE merged = FALSE AND closed = FALSE ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChangeSets(rows)
}

func queryGetReviewState(ctx context.Context, db executor, id int) (model.ReviewState, error) {
	var state string
	err := db.QueryRowContext(ctx,
		`SELECT review_state FROM change_sets WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", taskstore.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return model.ReviewState(state), nil
}

func queryMerge(ctx context.Context, db executor, id int) error {
	res, err := db.ExecContext(ctx,
		`UPDATE change_sets SET merged = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return taskstore.ErrNotFound
	}
	return nil
}
