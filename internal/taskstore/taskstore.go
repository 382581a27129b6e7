// Package taskstore defines the interface to the shared work tracker that
// agents coordinate through. All coordination state lives in the tracker as
// labels on work units, so any process that can reach the tracker sees the
// same picture.
package taskstore

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/foundry/internal/model"
)

// ErrNotFound is returned when a work unit or change set does not exist.
var ErrNotFound = errors.New("taskstore: not found")

// UnitFilter selects work units. Zero value matches all open units.
type UnitFilter struct {
	// State filters by unit state; empty means open.
	State model.UnitState
	// Labels must all be present on a matching unit (AND semantics).
	Labels []string
	// Unassigned, when true, matches only units with no assignee label.
	Unassigned bool
}

// Store is the tracker backend. Implementations must return units from
// ListUnits ordered by ascending ID, oldest work first; claim ordering
// depends on it.
type Store interface {
	// ListUnits returns units matching the filter, ordered by ascending ID.
	ListUnits(ctx context.Context, filter UnitFilter) ([]*model.WorkUnit, error)

	// GetUnit returns one unit, or ErrNotFound.
	GetUnit(ctx context.Context, id int) (*model.WorkUnit, error)

	// CreateUnit adds a new open unit with the given labels and returns it.
	CreateUnit(ctx context.Context, title, body string, labels []string) (*model.WorkUnit, error)

	// UpdateLabels adds then removes labels on a unit. Both directions are
	// idempotent: adding a present label or removing an absent one is not an
	// error.
	UpdateLabels(ctx context.Context, id int, add, remove []string) error

	// AddComment appends a comment to a unit.
	AddComment(ctx context.Context, id int, body string) error

	// CloseUnit marks a unit closed. Closing a closed unit is not an error.
	CloseUnit(ctx context.Context, id int) error

	// ListOpenChangeSets returns open (unmerged, unclosed) change sets
	// ordered by ascending ID.
	ListOpenChangeSets(ctx context.Context) ([]*model.ChangeSet, error)

	// GetReviewState returns the aggregate review verdict for a change set.
	GetReviewState(ctx context.Context, id int) (model.ReviewState, error)

	// Merge lands a change set using the given strategy and deletes its
	// source branch where the backend supports that.
	Merge(ctx context.Context, id int, strategy model.MergeStrategy) error

	// Close releases backend resources.
	Close() error
}
