package model

import (
	"regexp"
	"strings"
)

// Label keys used for coordination. The exact strings are part of the wire
// contract with the shared store and must match across all agents.
const (
	LabelKeyStatus   = "status"
	LabelKeyAssignee = "assignee"
	LabelKeyPriority = "priority"
)

// Status label values.
const (
	StatusPending    = "status:pending"
	StatusInProgress = "status:in-progress"
	StatusInReview   = "status:in-review"
)

// Priority label values.
const (
	PriorityHigh   = "priority:high"
	PriorityMedium = "priority:medium"
	PriorityLow    = "priority:low"
)

// AssigneeLabel builds the assignee label for an agent slug.
func AssigneeLabel(slug string) string {
	return LabelKeyAssignee + ":" + slug
}

// PriorityLabel builds a priority label, defaulting unknown values to medium.
func PriorityLabel(p string) string {
	switch strings.ToLower(p) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// LabelKey returns the key part of a key:value label, or the whole label
// when it has no colon.
func LabelKey(label string) string {
	if i := strings.IndexByte(label, ':'); i >= 0 {
		return label[:i]
	}
	return label
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts an agent name to the slug used in assignee labels and
// state file names: lowercase, non-alphanumerics collapsed to hyphens.
func Slugify(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
