package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/foundry/internal/events"
	"github.com/alfredjeanlab/foundry/internal/heartbeat"
)

// StaleAgent describes one agent whose heartbeat has gone quiet.
type StaleAgent struct {
	Record *heartbeat.Record
	Age    time.Duration
}

// ScanStale reports agents in the project whose heartbeats are older than
// threshold. Terminal records are skipped: an agent that exited cleanly is
// not stale, just gone. The scan only reports; reclaiming a dead agent's
// work is a human decision because the process may still be running with a
// wedged heartbeat writer.
func ScanStale(hb *heartbeat.Store, project string, threshold time.Duration, now time.Time) ([]StaleAgent, error) {
	records, err := hb.List(project)
	if err != nil {
		return nil, fmt.Errorf("agent: scan heartbeats: %w", err)
	}

	var stale []StaleAgent
	for _, rec := range records {
		if rec.Status.IsTerminal() {
			continue
		}
		age := now.Sub(rec.LastUpdate)
		if age > threshold {
			stale = append(stale, StaleAgent{Record: rec, Age: age})
		}
	}
	return stale, nil
}

// PublishStale emits a bus event per stale agent.
func PublishStale(ctx context.Context, pub events.Publisher, stale []StaleAgent) {
	for _, s := range stale {
		_ = pub.Publish(ctx, events.TopicAgentStale, events.AgentStale{
			AgentType:  s.Record.AgentType,
			Name:       s.Record.Name,
			Project:    s.Record.Project,
			LastUpdate: s.Record.LastUpdate,
		})
	}
}

// StaleReport renders the stale list as prompt text for the coordinator, or
// "" when everyone is alive.
func StaleReport(stale []StaleAgent) string {
	if len(stale) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("The following agents have stopped heartbeating and are presumed dead:\n")
	for _, s := range stale {
		fmt.Fprintf(&b, "- %s %q (last seen %s ago, was %s",
			s.Record.AgentType, s.Record.Name, s.Age.Round(time.Second), s.Record.Status)
		if s.Record.CurrentIssue != nil {
			fmt.Fprintf(&b, " on task #%d", *s.Record.CurrentIssue)
		}
		b.WriteString(")\n")
	}
	b.WriteString("Their claimed tasks keep their assignee labels; a restarted agent with the same name resumes them automatically.")
	return b.String()
}
