package claim

import (
	"context"
	"testing"

	"github.com/alfredjeanlab/foundry/internal/model"
	"github.com/alfredjeanlab/foundry/internal/taskstore"
)

func seed(t *testing.T, m *taskstore.MemoryStore, title string, labels ...string) *model.WorkUnit {
	t.Helper()
	u, err := m.CreateUnit(context.Background(), title, "", labels)
	if err != nil {
		t.Fatalf("CreateUnit(%s): %v", title, err)
	}
	return u
}

func TestPickPrefersOwnAssignedUnit(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()

	seed(t, m, "oldest unassigned", model.StatusPending)                              // ID 1
	seed(t, m, "someone else's", model.StatusPending, model.AssigneeLabel("bob"))     // ID 2
	mine := seed(t, m, "assigned to me", model.StatusPending, model.AssigneeLabel("alice")) // ID 3

	got, err := Pick(ctx, m, "alice")
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got == nil || got.ID != mine.ID {
		t.Errorf("Pick = %v, want unit %d (own assignment beats older unassigned)", got, mine.ID)
	}
}

func TestPickLowestUnassignedID(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()

	first := seed(t, m, "first", model.StatusPending)
	seed(t, m, "second", model.StatusPending)

	got, err := Pick(ctx, m, "alice")
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got == nil || got.ID != first.ID {
		t.Errorf("Pick = %v, want lowest ID %d", got, first.ID)
	}
}

func TestPickSkipsOtherWorkersAssignments(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()

	seed(t, m, "bob's", model.StatusPending, model.AssigneeLabel("bob"))
	free := seed(t, m, "free", model.StatusPending)

	got, err := Pick(ctx, m, "alice")
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got == nil || got.ID != free.ID {
		t.Errorf("Pick = %v, want unassigned unit %d", got, free.ID)
	}
}

func TestPickNoWork(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()

	// In-progress units are not pending work.
	seed(t, m, "busy", model.StatusInProgress, model.AssigneeLabel("alice"))

	got, err := Pick(ctx, m, "alice")
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if got != nil {
		t.Errorf("Pick = %v, want nil when nothing is pending", got)
	}
}

func TestClaimSwapsStatusAndAssigns(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()
	u := seed(t, m, "task", model.StatusPending)

	if err := Claim(ctx, m, u, "alice"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	got, err := m.GetUnit(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUnit: %v", err)
	}
	if got.Status() != "in-progress" {
		t.Errorf("status = %q, want in-progress", got.Status())
	}
	if got.Assignee() != "alice" {
		t.Errorf("assignee = %q, want alice", got.Assignee())
	}
	if got.HasLabel(model.StatusPending) {
		t.Error("pending label should be removed")
	}
}

func TestClaimKeepsExistingAssignee(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()
	u := seed(t, m, "task", model.StatusPending, model.AssigneeLabel("alice"))

	if err := Claim(ctx, m, u, "alice"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	got, _ := m.GetUnit(ctx, u.ID)
	count := 0
	for _, l := range got.Labels {
		if model.LabelKey(l) == model.LabelKeyAssignee {
			count++
		}
	}
	if count != 1 {
		t.Errorf("assignee labels = %d, want exactly 1", count)
	}
}

func TestPickAndClaimScenario(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()

	seed(t, m, "unassigned low", model.StatusPending)                               // 1
	seed(t, m, "in progress", model.StatusInProgress, model.AssigneeLabel("bob"))   // 2
	mine := seed(t, m, "mine", model.StatusPending, model.AssigneeLabel("alice"))   // 3

	got, err := PickAndClaim(ctx, m, "alice")
	if err != nil {
		t.Fatalf("PickAndClaim: %v", err)
	}
	if got == nil || got.ID != mine.ID {
		t.Fatalf("PickAndClaim = %v, want unit %d", got, mine.ID)
	}

	after, _ := m.GetUnit(ctx, mine.ID)
	if after.Status() != "in-progress" || after.Assignee() != "alice" {
		t.Errorf("after claim: status=%q assignee=%q", after.Status(), after.Assignee())
	}
}

func TestPickAndClaimNoWork(t *testing.T) {
	got, err := PickAndClaim(context.Background(), taskstore.NewMemoryStore(), "alice")
	if err != nil {
		t.Fatalf("PickAndClaim: %v", err)
	}
	if got != nil {
		t.Errorf("PickAndClaim on empty store = %v, want nil", got)
	}
}

func TestReleaseKeepsAssignee(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()
	u := seed(t, m, "task", model.StatusInProgress, model.AssigneeLabel("alice"))

	if err := Release(ctx, m, u.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}

	got, _ := m.GetUnit(ctx, u.ID)
	if got.Status() != "pending" {
		t.Errorf("status = %q, want pending", got.Status())
	}
	if got.Assignee() != "alice" {
		t.Error("assignee should survive release so the worker re-picks its unit")
	}
}

func TestMarkInReview(t *testing.T) {
	ctx := context.Background()
	m := taskstore.NewMemoryStore()
	u := seed(t, m, "task", model.StatusInProgress, model.AssigneeLabel("alice"))

	if err := MarkInReview(ctx, m, u.ID); err != nil {
		t.Fatalf("MarkInReview: %v", err)
	}

	got, _ := m.GetUnit(ctx, u.ID)
	if got.Status() != "in-review" {
		t.Errorf("status = %q, want in-review", got.Status())
	}
	if got.HasLabel(model.StatusInProgress) {
		t.Error("in-progress label should be removed")
	}
}
