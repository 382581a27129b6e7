package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/foundry/internal/claim"
	"github.com/alfredjeanlab/foundry/internal/engine"
	"github.com/alfredjeanlab/foundry/internal/events"
	"github.com/alfredjeanlab/foundry/internal/heartbeat"
	"github.com/alfredjeanlab/foundry/internal/model"
	"github.com/alfredjeanlab/foundry/internal/taskstore"
)

// Agent type names. Also the values of the heartbeat agent_type field.
const (
	TypeCoordinator = "coordinator"
	TypeWorker      = "worker"
	TypeGatekeeper  = "gatekeeper"
)

// ErrNoMoreWork is returned from Prepare when the role's work is finished
// for good, not just momentarily empty. The loop exits successfully.
var ErrNoMoreWork = errors.New("agent: no more work")

// Turn is the per-iteration context the loop hands to its role. The role
// mutates Record (phase, details, current unit) and the loop persists it.
type Turn struct {
	Store      taskstore.Store
	Heartbeats *heartbeat.Store
	Record     *heartbeat.Record
	Events     events.Publisher
	Logger     *slog.Logger
	Iteration  int
}

// Role is the behavior that differs between coordinator, worker, and
// gatekeeper. The loop owns sessions, heartbeats, signals, and pacing; the
// role owns prompts and tracker protocol.
type Role interface {
	Type() string
	SystemPrompt() string
	// AllowedTools is the engine capability set for this role; nil means
	// unrestricted.
	AllowedTools() []string
	// Prepare runs before an engine call and returns the prompt for the
	// turn. An empty prompt means there is nothing to do right now: the
	// loop records the idle phase and sleeps instead of calling the engine.
	Prepare(ctx context.Context, t *Turn) (string, error)
	// AfterReply runs protocol side effects once an engine call completes.
	AfterReply(ctx context.Context, t *Turn, res *engine.Result) error
}

// --- worker ---

// WorkerRole claims pending units one at a time and drives the engine to
// implement them. The claim happens in Go, before any engine call, so a
// unit is never half-claimed by a crashed prompt.
type WorkerRole struct {
	Slug string

	current *model.WorkUnit
}

var _ Role = (*WorkerRole)(nil)

func (w *WorkerRole) Type() string { return TypeWorker }

func (w *WorkerRole) SystemPrompt() string {
	return "You are a software engineer working through a shared task tracker. " +
		"Implement exactly one task at a time. When the implementation is ready, " +
		"open a change set whose description contains \"Resolves #<task number>\" " +
		"and report the change set number in your reply. " +
		"Ask a question only when you genuinely cannot proceed without an answer."
}

func (w *WorkerRole) AllowedTools() []string {
	return []string{"Read", "Edit", "Glob", "Write", "Bash"}
}

func (w *WorkerRole) Prepare(ctx context.Context, t *Turn) (string, error) {
	// Refresh the current unit; the gatekeeper may have merged it since the
	// last turn.
	if w.current != nil {
		unit, err := t.Store.GetUnit(ctx, w.current.ID)
		if err == taskstore.ErrNotFound {
			w.current = nil
		} else if err != nil {
			return "", err
		} else if unit.State == model.UnitClosed {
			t.Logger.Info("task closed, moving on", "unit", unit.ID)
			w.current = nil
		} else {
			w.current = unit
		}
	}

	if w.current == nil {
		unit, err := claim.PickAndClaim(ctx, t.Store, w.Slug)
		if err != nil {
			return "", err
		}
		if unit == nil {
			t.Record.CurrentIssue = nil
			// Distinguish "nothing for me right now" from "the backlog is
			// done": with no open units at all, this worker is finished.
			open, err := t.Store.ListUnits(ctx, taskstore.UnitFilter{})
			if err != nil {
				return "", err
			}
			if len(open) == 0 {
				return "", ErrNoMoreWork
			}
			t.Record.Details = "no pending tasks"
			return "", nil
		}
		w.current = unit
		id := unit.ID
		t.Record.CurrentIssue = &id
		t.Record.Details = fmt.Sprintf("task #%d: %s", unit.ID, unit.Title)
		_ = t.Events.Publish(ctx, events.TopicUnitClaimed, events.UnitClaimed{
			UnitID:  unit.ID,
			Slug:    w.Slug,
			Project: t.Record.Project,
		})
		t.Logger.Info("claimed task", "unit", unit.ID, "title", unit.Title)
		return fmt.Sprintf(
			"Work on task #%d: %s\n\n%s\n\nWhen done, open a change set that resolves #%d and tell me its number.",
			unit.ID, unit.Title, unit.Body, unit.ID), nil
	}

	switch w.current.Status() {
	case "in-review":
		return fmt.Sprintf(
			"Check the change set for task #%d for review feedback. If a reviewer requested changes, address every comment and push an update. Otherwise report that you are still waiting.",
			w.current.ID), nil
	default:
		return fmt.Sprintf("Continue working on task #%d. Report your progress.", w.current.ID), nil
	}
}

func (w *WorkerRole) AfterReply(ctx context.Context, t *Turn, res *engine.Result) error {
	if w.current == nil {
		return nil
	}

	// The reply naming a change set means the work moved to review.
	if pr, ok := findChangeSetNumber(res.Text); ok {
		if err := claim.MarkInReview(ctx, t.Store, w.current.ID); err != nil {
			return err
		}
		t.Record.CurrentPR = &pr
		t.Record.Status = model.PhaseWaitingReview
		t.Record.Details = fmt.Sprintf("task #%d in review (change set #%d)", w.current.ID, pr)
		return nil
	}

	if w.current.Status() == "in-review" {
		t.Record.Status = model.PhaseAddressingFeedback
		t.Record.Details = fmt.Sprintf("addressing feedback on task #%d", w.current.ID)
	}
	return nil
}

var changeSetPattern = regexp.MustCompile(`(?i)change set #(\d+)`)

// findChangeSetNumber extracts a "change set #N" reference from an engine
// reply.
func findChangeSetNumber(text string) (int, bool) {
	m := changeSetPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// --- gatekeeper ---

// GatekeeperRole lands approved change sets and feeds review work to the
// engine. Merging is pure protocol and happens in Go; the engine only gets
// involved for actual code review.
type GatekeeperRole struct {
	Name string
}

var _ Role = (*GatekeeperRole)(nil)

func (g *GatekeeperRole) Type() string { return TypeGatekeeper }

func (g *GatekeeperRole) SystemPrompt() string {
	return "You are a code reviewer. Review each change set you are given for " +
		"correctness, test coverage, and fit with the existing code. Approve it or " +
		"request specific changes; never merge anything yourself."
}

// AllowedTools keeps the reviewer read-only: it inspects and comments, it
// never edits the tree.
func (g *GatekeeperRole) AllowedTools() []string {
	return []string{"Read", "Glob", "Bash", "Grep"}
}

func (g *GatekeeperRole) Prepare(ctx context.Context, t *Turn) (string, error) {
	open, err := t.Store.ListOpenChangeSets(ctx)
	if err != nil {
		return "", err
	}

	var pending []*model.ChangeSet
	remaining := 0
	for _, cs := range open {
		state, err := t.Store.GetReviewState(ctx, cs.ID)
		if err != nil {
			return "", err
		}
		switch state {
		case model.ReviewApproved:
			if err := g.land(ctx, t, cs); err != nil {
				return "", err
			}
		case model.ReviewPending:
			pending = append(pending, cs)
			remaining++
		default:
			// changes_requested: the worker's move, nothing for the
			// gatekeeper.
			remaining++
		}
	}

	if len(pending) == 0 {
		if remaining == 0 {
			units, err := t.Store.ListUnits(ctx, taskstore.UnitFilter{})
			if err != nil {
				return "", err
			}
			if len(units) == 0 {
				return "", ErrNoMoreWork
			}
		}
		t.Record.Details = "no change sets awaiting review"
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Review the following change sets:\n")
	for _, cs := range pending {
		fmt.Fprintf(&b, "- change set #%d: %s (branch %s, by %s)\n", cs.ID, cs.Title, cs.Branch, cs.Author)
	}
	b.WriteString("For each one, approve it or request changes with specific comments.")
	t.Record.Details = fmt.Sprintf("reviewing %d change sets", len(pending))
	return b.String(), nil
}

// land merges an approved change set and closes the unit it resolves.
func (g *GatekeeperRole) land(ctx context.Context, t *Turn, cs *model.ChangeSet) error {
	if err := t.Store.Merge(ctx, cs.ID, model.MergeSquash); err != nil {
		return fmt.Errorf("merge change set %d: %w", cs.ID, err)
	}
	t.Logger.Info("merged change set", "change_set", cs.ID, "branch", cs.Branch)
	_ = t.Events.Publish(ctx, events.TopicChangeSetMerged, events.ChangeSetMerged{
		ChangeSetID: cs.ID,
		Project:     t.Record.Project,
		MergedBy:    g.Name,
	})

	if unitID, ok := findResolvedUnit(cs.Body); ok {
		comment := fmt.Sprintf("Merged change set #%d (%s).", cs.ID, cs.Branch)
		if err := t.Store.AddComment(ctx, unitID, comment); err != nil && err != taskstore.ErrNotFound {
			return fmt.Errorf("comment on unit %d: %w", unitID, err)
		}
		if err := t.Store.CloseUnit(ctx, unitID); err != nil && err != taskstore.ErrNotFound {
			return fmt.Errorf("close unit %d: %w", unitID, err)
		}
	}
	return nil
}

func (g *GatekeeperRole) AfterReply(ctx context.Context, t *Turn, res *engine.Result) error {
	return nil
}

var resolvesPattern = regexp.MustCompile(`(?i)resolves #(\d+)`)

// findResolvedUnit extracts the "Resolves #N" unit reference from a change
// set body.
func findResolvedUnit(body string) (int, bool) {
	m := resolvesPattern.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// --- coordinator ---

// CoordinatorRole turns a project goal into tracker backlog and watches the
// fleet. Each turn it scans for stale agents and reports them to the engine
// alongside the current backlog state.
type CoordinatorRole struct {
	Goal           string
	StaleThreshold time.Duration

	// Now is the clock, overridable in tests.
	Now func() time.Time

	summarized bool
}

var _ Role = (*CoordinatorRole)(nil)

func (c *CoordinatorRole) Type() string { return TypeCoordinator }

func (c *CoordinatorRole) SystemPrompt() string {
	return "You are a project coordinator. Break the goal into small, independent tasks. " +
		"When you want new tasks created, reply with a fenced json block containing an array of " +
		`{"title": ..., "body": ..., "priority": "high"|"medium"|"low"} objects. ` +
		"Tasks you emit are created verbatim, so make titles actionable and bodies self-contained."
}

// AllowedTools lets the coordinator read and write planning notes but not
// run commands.
func (c *CoordinatorRole) AllowedTools() []string {
	return []string{"Read", "Edit", "Glob", "Write"}
}

func (c *CoordinatorRole) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CoordinatorRole) Prepare(ctx context.Context, t *Turn) (string, error) {
	threshold := c.StaleThreshold
	if threshold <= 0 {
		threshold = heartbeat.DefaultStaleThreshold
	}
	stale, err := ScanStale(t.Heartbeats, t.Record.Project, threshold, c.now())
	if err != nil {
		return "", err
	}
	PublishStale(ctx, t.Events, stale)
	staleNote := StaleReport(stale)

	if t.Iteration == 1 {
		prompt := fmt.Sprintf("Project goal:\n%s\n\nReview the goal and produce the initial task backlog.", c.Goal)
		if staleNote != "" {
			prompt += "\n\n" + staleNote
		}
		return prompt, nil
	}

	open, err := t.Store.ListUnits(ctx, taskstore.UnitFilter{})
	if err != nil {
		return "", err
	}
	if len(open) == 0 {
		if c.summarized {
			return "", ErrNoMoreWork
		}
		c.summarized = true
		t.Record.Details = "all tasks closed"
		prompt := "All tasks are closed. Summarize what was accomplished toward the goal and anything left undone."
		if staleNote != "" {
			prompt += "\n\n" + staleNote
		}
		return prompt, nil
	}
	c.summarized = false

	var b strings.Builder
	fmt.Fprintf(&b, "Backlog status: %d open tasks.\n", len(open))
	for _, u := range open {
		status := u.Status()
		if status == "" {
			status = "unlabeled"
		}
		fmt.Fprintf(&b, "- #%d [%s] %s\n", u.ID, status, u.Title)
	}
	b.WriteString("\nAssess progress toward the goal. Create new tasks if gaps remain; otherwise summarize the state.")
	if staleNote != "" {
		b.WriteString("\n\n" + staleNote)
	}
	t.Record.Details = fmt.Sprintf("%d open tasks", len(open))
	return b.String(), nil
}

// taskSpec is one entry of the coordinator's fenced json task list.
type taskSpec struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Priority string `json:"priority"`
}

func (c *CoordinatorRole) AfterReply(ctx context.Context, t *Turn, res *engine.Result) error {
	specs := parseTaskList(res.Text)
	for _, spec := range specs {
		if strings.TrimSpace(spec.Title) == "" {
			continue
		}
		labels := []string{model.StatusPending, model.PriorityLabel(spec.Priority)}
		unit, err := t.Store.CreateUnit(ctx, spec.Title, spec.Body, labels)
		if err != nil {
			return fmt.Errorf("create task %q: %w", spec.Title, err)
		}
		t.Logger.Info("created task", "unit", unit.ID, "title", unit.Title)
		_ = t.Events.Publish(ctx, events.TopicUnitCreated, events.UnitCreated{
			Unit:    unit,
			Project: t.Record.Project,
		})
	}
	return nil
}

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")

// parseTaskList extracts task specs from the first fenced json array in the
// reply. Malformed blocks are ignored rather than failing the turn.
func parseTaskList(text string) []taskSpec {
	m := fencedJSONPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var specs []taskSpec
	if err := json.Unmarshal([]byte(m[1]), &specs); err != nil {
		return nil
	}
	return specs
}
