package model

import "time"

// UnitState is the open/closed state of a work unit in the shared store.
type UnitState string

const (
	UnitOpen   UnitState = "open"
	UnitClosed UnitState = "closed"
)

// String returns the string representation of the state.
func (s UnitState) String() string {
	return string(s)
}

// IsValid checks whether the state is a known value.
func (s UnitState) IsValid() bool {
	switch s {
	case UnitOpen, UnitClosed:
		return true
	}
	return false
}

// WorkUnit is a unit of work tracked in the shared store. The store assigns
// identifiers; they are unique and monotonically increasing, so the lowest
// identifier is always the earliest-created unit.
type WorkUnit struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	State     UnitState `json:"state"`
	Labels    []string  `json:"labels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLabel reports whether the unit carries the exact label.
func (u *WorkUnit) HasLabel(label string) bool {
	for _, l := range u.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// LabelValue returns the value of the unit's label with the given key
// ("status", "assignee", "priority"), or "" when no such label is present.
// A unit carries at most one label per key.
func (u *WorkUnit) LabelValue(key string) string {
	prefix := key + ":"
	for _, l := range u.Labels {
		if len(l) > len(prefix) && l[:len(prefix)] == prefix {
			return l[len(prefix):]
		}
	}
	return ""
}

// Status returns the unit's status label value, if any.
func (u *WorkUnit) Status() string { return u.LabelValue(LabelKeyStatus) }

// Assignee returns the unit's assignee label value, if any.
func (u *WorkUnit) Assignee() string { return u.LabelValue(LabelKeyAssignee) }

// ReviewState is the review decision recorded on a change set.
type ReviewState string

const (
	ReviewPending          ReviewState = "pending"
	ReviewApproved         ReviewState = "approved"
	ReviewChangesRequested ReviewState = "changes_requested"
)

// String returns the string representation of the review state.
func (r ReviewState) String() string {
	return string(r)
}

// ChangeSet is a proposed patch tied to exactly one work unit by the
// "Resolves #N" convention in its body. Created by workers, transitioned
// by the gatekeeper. Merging a change set closes its unit; that is a
// property of the external store, not modeled here.
type ChangeSet struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Branch    string    `json:"branch"`
	Author    string    `json:"author,omitempty"`
	Merged    bool      `json:"merged"`
	Closed    bool      `json:"closed"`
	CreatedAt time.Time `json:"created_at"`
}

// MergeStrategy selects how a change set is merged.
type MergeStrategy string

const (
	// MergeSquash squashes the change set into a single commit and deletes
	// the source branch. The only strategy the gatekeeper uses.
	MergeSquash MergeStrategy = "squash"
)
