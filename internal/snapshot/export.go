// Package snapshot periodically exports the local coordination state
// (heartbeats and session records) as JSONL to remote destinations, so a
// fleet operator can see every machine's agents in one place.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/foundry/internal/heartbeat"
	"github.com/alfredjeanlab/foundry/internal/session"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	AgentCount   int       `json:"agent_count"`
	SessionCount int       `json:"session_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes all heartbeat and session records for a project (empty
// project means all) as JSONL to w.
func ExportJSONL(hb *heartbeat.Store, sess *session.Store, project string, w io.Writer) error {
	agents, err := hb.List(project)
	if err != nil {
		return fmt.Errorf("list heartbeats: %w", err)
	}
	sessions, err := sess.List(project)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		AgentCount:   len(agents),
		SessionCount: len(sessions),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, a := range agents {
		if err := enc.Encode(record{Type: "agent", Data: a}); err != nil {
			return fmt.Errorf("encode agent %s: %w", a.Name, err)
		}
	}
	for _, s := range sessions {
		if err := enc.Encode(record{Type: "session", Data: s}); err != nil {
			return fmt.Errorf("encode session %s: %w", s.SessionID, err)
		}
	}
	return nil
}
