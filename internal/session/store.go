// Package session persists conversation-resume records so an agent can pick
// up a long engine conversation after a crash instead of starting over.
//
// One record exists per (agent type, agent name, project). Save fully
// replaces the document; there are no merge semantics. The record is touched
// at exactly two points in an agent's life: read once at startup to decide
// resume-vs-fresh, and rewritten after every completed engine turn.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alfredjeanlab/foundry/internal/model"
)

// Record describes a saved engine conversation. Field names are part of the
// on-disk contract.
type Record struct {
	SessionID    string   `json:"session_id"`
	AgentName    string   `json:"agent_name"`
	AgentType    string   `json:"agent_type"`
	Project      string   `json:"project"`
	LastRun      time.Time `json:"last_run"`
	NumTurns     int      `json:"num_turns"`
	TotalCostUSD *float64 `json:"total_cost_usd"`
}

// Store reads and writes session records under a state directory.
type Store struct {
	dir string // <state>/sessions
}

// NewStore creates a store rooted at stateDir (records live under
// stateDir/sessions/).
func NewStore(stateDir string) *Store {
	return &Store{dir: filepath.Join(stateDir, "sessions")}
}

// Path returns the file path for a record key.
func (s *Store) Path(agentType, name, project string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-%s-%s.json", agentType, model.Slugify(name), project))
}

// Get loads the record for the key. It returns (nil, nil) when no record
// exists; a corrupt record is reported as an error so the caller can decide
// whether to start fresh.
func (s *Store) Get(agentType, name, project string) (*Record, error) {
	path := s.Path(agentType, name, project)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", path, err)
	}
	return &rec, nil
}

// Save persists the record atomically, fully replacing any prior document.
func (s *Store) Save(rec *Record) error {
	path := s.Path(rec.AgentType, rec.AgentName, rec.Project)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: rename: %w", err)
	}
	return nil
}

// Delete removes the record for the key. It reports whether a record existed.
func (s *Store) Delete(agentType, name, project string) (bool, error) {
	err := os.Remove(s.Path(agentType, name, project))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session: delete: %w", err)
	}
	return true, nil
}

// List returns all parseable session records, optionally filtered to one
// project (empty project means all).
func (s *Store) List(project string) ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}

	var recs []*Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if project != "" && rec.Project != project {
			continue
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}
