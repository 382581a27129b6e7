// Package heartbeat persists per-agent liveness records on local disk.
//
// Each running agent owns exactly one record, keyed by (project, agent type,
// agent name). The owning process is the only writer; the stale-agent
// supervisor, the status command, and cleanup tooling read the files
// advisorily. Writes go through a temp file and an atomic rename so a
// concurrent reader never observes a half-written record.
package heartbeat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alfredjeanlab/foundry/internal/model"
)

// DefaultStaleThreshold is how long a record may go without an update before
// the agent is considered dead.
const DefaultStaleThreshold = 300 * time.Second

// Record is one agent's heartbeat document. Field names are part of the
// on-disk contract shared with external tooling.
type Record struct {
	AgentType    string      `json:"agent_type"`
	Name         string      `json:"name"`
	Project      string      `json:"project"`
	PID          int         `json:"pid"`
	Status       model.Phase `json:"status"`
	Details      string      `json:"details"`
	CurrentIssue *int        `json:"current_issue"`
	CurrentPR    *int        `json:"current_pr"`
	LastUpdate   time.Time   `json:"last_update"`
	StartedAt    time.Time   `json:"started_at"`
}

// Key identifies a heartbeat record.
type Key struct {
	Project   string
	AgentType string
	Name      string
}

// Store reads and writes heartbeat records under a state directory.
type Store struct {
	dir string // <state>/agents
}

// NewStore creates a store rooted at stateDir (records live under
// stateDir/agents/<project>/).
func NewStore(stateDir string) *Store {
	return &Store{dir: filepath.Join(stateDir, "agents")}
}

// Path returns the file path for a key. The agent name is only included in
// the filename when it differs from the agent type, matching the layout
// expected by humans inspecting the directory.
func (s *Store) Path(k Key) string {
	name := k.AgentType
	if slug := model.Slugify(k.Name); slug != "" && slug != k.AgentType && slug != "default" {
		name = k.AgentType + "-" + slug
	}
	return filepath.Join(s.dir, k.Project, name+".status")
}

// Write persists the record atomically. The store stamps last_update with
// the current time on every write regardless of what the caller set, and
// sets started_at on the first write of a run. Writes always replace the
// whole document; the owning agent holds the authoritative record in memory.
// Phase transition legality is the agent loop's concern, not the store's: a
// fresh process legitimately overwrites whatever its crashed predecessor
// left behind.
func (s *Store) Write(rec *Record) error {
	k := Key{Project: rec.Project, AgentType: rec.AgentType, Name: rec.Name}
	path := s.Path(k)

	now := time.Now()
	rec.LastUpdate = now
	if rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	if rec.PID == 0 {
		rec.PID = os.Getpid()
	}

	return writeFileAtomic(path, rec)
}

// Read loads a record. It returns (nil, nil) when no record exists and an
// error only for unreadable or corrupt files.
func (s *Store) Read(k Key) (*Record, error) {
	data, err := os.ReadFile(s.Path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("heartbeat: read %s: %w", s.Path(k), err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("heartbeat: parse %s: %w", s.Path(k), err)
	}
	return &rec, nil
}

// IsStale reports whether the record for k is missing or older than
// threshold. An absent or unreadable record is stale; otherwise the record
// is stale iff now - last_update is strictly greater than the threshold.
func (s *Store) IsStale(k Key, threshold time.Duration) bool {
	rec, err := s.Read(k)
	if err != nil || rec == nil {
		return true
	}
	return staleAt(rec.LastUpdate, time.Now(), threshold)
}

// staleAt implements the freshness policy: stale iff age is strictly greater
// than the threshold, so a record exactly at the threshold is still fresh.
func staleAt(lastUpdate, now time.Time, threshold time.Duration) bool {
	return now.Sub(lastUpdate) > threshold
}

// Delete removes the record for k. It reports whether a record existed.
func (s *Store) Delete(k Key) (bool, error) {
	err := os.Remove(s.Path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("heartbeat: delete %s: %w", s.Path(k), err)
	}
	return true, nil
}

// List returns all parseable records for a project, advisorily: records may
// be overwritten by their owners at any moment. Corrupt or vanished files
// are skipped.
func (s *Store) List(project string) ([]*Record, error) {
	dir := filepath.Join(s.dir, project)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("heartbeat: list %s: %w", dir, err)
	}

	var recs []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".status") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}

// Projects returns the project names that have at least one record.
func (s *Store) Projects() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("heartbeat: list projects: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// writeFileAtomic marshals v and replaces path with it via a temp file and
// rename, so readers see either the old document or the new one, never a
// torn write.
func writeFileAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("heartbeat: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("heartbeat: marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".heartbeat-*")
	if err != nil {
		return fmt.Errorf("heartbeat: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("heartbeat: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("heartbeat: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("heartbeat: rename: %w", err)
	}
	return nil
}
