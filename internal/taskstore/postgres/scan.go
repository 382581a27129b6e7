package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/foundry/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanUnit scans a single row into a model.WorkUnit.
// The row must contain columns in the order defined by unitColumns.
func scanUnit(row scannable) (*model.WorkUnit, error) {
	var u model.WorkUnit
	var body sql.NullString

	err := row.Scan(
		&u.ID,
		&u.Title,
		&body,
		&u.State,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Body = body.String
	return &u, nil
}

// scanUnits scans multiple rows into a slice of model.WorkUnit pointers.
func scanUnits(rows *sql.Rows) ([]*model.WorkUnit, error) {
	var units []*model.WorkUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

// scanChangeSet scans a single row into a model.ChangeSet.
func scanChangeSet(row scannable) (*model.ChangeSet, error) {
	var cs model.ChangeSet
	var (
		body        sql.NullString
		author      sql.NullString
		reviewState string
	)

	err := row.Scan(
		&cs.ID,
		&cs.Title,
		&body,
		&cs.Branch,
		&author,
		&cs.Merged,
		&cs.Closed,
		&reviewState,
		&cs.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	cs.Body = body.String
	cs.Author = author.String
	_ = reviewState // exposed through GetReviewState, not the model
	return &cs, nil
}

// scanChangeSets scans multiple rows into a slice of model.ChangeSet pointers.
func scanChangeSets(rows *sql.Rows) ([]*model.ChangeSet, error) {
	var sets []*model.ChangeSet
	for rows.Next() {
		cs, err := scanChangeSet(rows)
		if err != nil {
			return nil, err
		}
		sets = append(sets, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sets, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
