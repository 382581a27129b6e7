package agent

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/foundry/internal/events"
	"github.com/alfredjeanlab/foundry/internal/heartbeat"
	"github.com/alfredjeanlab/foundry/internal/model"
)

// writeBackdated writes a heartbeat record whose last_update is age in the
// past, bypassing the store's own timestamping.
func writeBackdated(t *testing.T, hb *heartbeat.Store, rec *heartbeat.Record, age time.Duration) {
	t.Helper()
	if err := hb.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rec.LastUpdate = time.Now().Add(-age)
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := hb.Path(heartbeat.Key{Project: rec.Project, AgentType: rec.AgentType, Name: rec.Name})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestScanStale(t *testing.T) {
	hb := heartbeat.NewStore(t.TempDir())
	now := time.Now()
	threshold := 5 * time.Minute

	issue := 7
	writeBackdated(t, hb, &heartbeat.Record{
		AgentType: TypeWorker, Name: "dead", Project: "demo",
		Status: model.PhaseWorking, CurrentIssue: &issue,
	}, 10*time.Minute)
	writeBackdated(t, hb, &heartbeat.Record{
		AgentType: TypeWorker, Name: "alive", Project: "demo",
		Status: model.PhaseWorking,
	}, time.Minute)
	// Exited cleanly long ago: gone, not stale.
	writeBackdated(t, hb, &heartbeat.Record{
		AgentType: TypeGatekeeper, Name: "retired", Project: "demo",
		Status: model.PhaseExitedSuccess,
	}, time.Hour)
	// Different project, never reported.
	writeBackdated(t, hb, &heartbeat.Record{
		AgentType: TypeWorker, Name: "elsewhere", Project: "other",
		Status: model.PhaseWorking,
	}, time.Hour)

	stale, err := ScanStale(hb, "demo", threshold, now)
	if err != nil {
		t.Fatalf("ScanStale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("stale = %d agents, want 1", len(stale))
	}
	if stale[0].Record.Name != "dead" {
		t.Errorf("stale agent = %q, want dead", stale[0].Record.Name)
	}
	if stale[0].Age < 9*time.Minute {
		t.Errorf("age = %v, want about 10m", stale[0].Age)
	}
}

func TestScanStaleThresholdBoundary(t *testing.T) {
	hb := heartbeat.NewStore(t.TempDir())
	threshold := 5 * time.Minute

	rec := &heartbeat.Record{
		AgentType: TypeWorker, Name: "edge", Project: "demo",
		Status: model.PhaseIdle,
	}
	writeBackdated(t, hb, rec, 0)

	// Exactly at the threshold is not stale; must be strictly older.
	atThreshold := rec.LastUpdate.Add(threshold)
	stale, err := ScanStale(hb, "demo", threshold, atThreshold)
	if err != nil {
		t.Fatalf("ScanStale: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("stale at exact threshold = %d, want 0", len(stale))
	}

	stale, err = ScanStale(hb, "demo", threshold, atThreshold.Add(time.Second))
	if err != nil {
		t.Fatalf("ScanStale: %v", err)
	}
	if len(stale) != 1 {
		t.Errorf("stale past threshold = %d, want 1", len(stale))
	}
}

// capturePub records published events for assertions.
type capturePub struct {
	mu     sync.Mutex
	topics []string
}

func (p *capturePub) Publish(ctx context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return nil
}

func (p *capturePub) Close() error { return nil }

func TestPublishStale(t *testing.T) {
	pub := &capturePub{}
	PublishStale(context.Background(), pub, []StaleAgent{
		{Record: &heartbeat.Record{AgentType: TypeWorker, Name: "a", Project: "demo"}},
		{Record: &heartbeat.Record{AgentType: TypeWorker, Name: "b", Project: "demo"}},
	})
	if len(pub.topics) != 2 {
		t.Fatalf("published = %d events, want 2", len(pub.topics))
	}
	for _, topic := range pub.topics {
		if topic != events.TopicAgentStale {
			t.Errorf("topic = %q, want %q", topic, events.TopicAgentStale)
		}
	}
}

func TestStaleReport(t *testing.T) {
	if got := StaleReport(nil); got != "" {
		t.Errorf("empty report = %q, want \"\"", got)
	}

	issue := 3
	report := StaleReport([]StaleAgent{{
		Record: &heartbeat.Record{
			AgentType: TypeWorker, Name: "alice", Project: "demo",
			Status: model.PhaseWorking, CurrentIssue: &issue,
		},
		Age: 12 * time.Minute,
	}})
	for _, want := range []string{"alice", "12m0s", "on task #3", "assignee labels"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
