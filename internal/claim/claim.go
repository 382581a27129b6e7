// Package claim implements the task selection and claim protocol workers use
// to divide pending work without a lock service. Selection prefers units
// already assigned to the caller (crash recovery: a restarted worker picks
// its old task back up), then the oldest unassigned pending unit.
//
// Claims are advisory. Two workers polling at the same moment can both claim
// a unit; the protocol accepts that the later label write wins rather than
// paying for coordination on every poll.
package claim

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/foundry/internal/model"
	"github.com/alfredjeanlab/foundry/internal/taskstore"
)

// Pick selects the unit a worker with the given slug should claim next.
// It returns (nil, nil) when no pending work exists.
func Pick(ctx context.Context, store taskstore.Store, slug string) (*model.WorkUnit, error) {
	// Units already assigned to this worker come first; a crashed worker's
	// replacement resumes the abandoned task instead of starting a new one.
	mine, err := store.ListUnits(ctx, taskstore.UnitFilter{
		Labels: []string{model.StatusPending, model.AssigneeLabel(slug)},
	})
	if err != nil {
		return nil, fmt.Errorf("claim: list assigned units: %w", err)
	}
	if len(mine) > 0 {
		return mine[0], nil
	}

	free, err := store.ListUnits(ctx, taskstore.UnitFilter{
		Labels:     []string{model.StatusPending},
		Unassigned: true,
	})
	if err != nil {
		return nil, fmt.Errorf("claim: list unassigned units: %w", err)
	}
	if len(free) > 0 {
		return free[0], nil
	}
	return nil, nil
}

// Claim marks the unit as in progress and assigned to slug. The assignee
// label is only added when the unit has none, so re-claiming an
// already-assigned unit never changes its owner.
func Claim(ctx context.Context, store taskstore.Store, unit *model.WorkUnit, slug string) error {
	add := []string{model.StatusInProgress}
	if unit.Assignee() == "" {
		add = append(add, model.AssigneeLabel(slug))
	}
	if err := store.UpdateLabels(ctx, unit.ID, add, []string{model.StatusPending}); err != nil {
		return fmt.Errorf("claim: unit %d: %w", unit.ID, err)
	}
	return nil
}

// PickAndClaim combines Pick and Claim. It returns (nil, nil) when there is
// no work. The claim is not re-verified after the label write; see the
// package comment for why.
func PickAndClaim(ctx context.Context, store taskstore.Store, slug string) (*model.WorkUnit, error) {
	unit, err := Pick(ctx, store, slug)
	if err != nil || unit == nil {
		return nil, err
	}
	if err := Claim(ctx, store, unit, slug); err != nil {
		return nil, err
	}
	return unit, nil
}

// Release returns a claimed unit to the pending pool, keeping the assignee
// label so the same worker is preferred on the next pick.
func Release(ctx context.Context, store taskstore.Store, id int) error {
	err := store.UpdateLabels(ctx, id,
		[]string{model.StatusPending},
		[]string{model.StatusInProgress, model.StatusInReview})
	if err != nil {
		return fmt.Errorf("claim: release unit %d: %w", id, err)
	}
	return nil
}

// MarkInReview moves a claimed unit from in-progress to in-review once the
// worker has posted a change set for it.
func MarkInReview(ctx context.Context, store taskstore.Store, id int) error {
	err := store.UpdateLabels(ctx, id,
		[]string{model.StatusInReview},
		[]string{model.StatusInProgress})
	if err != nil {
		return fmt.Errorf("claim: mark unit %d in review: %w", id, err)
	}
	return nil
}
