package config

import (
	"testing"
	"time"
)

// allEnvVars lists every env var Load reads, cleared between tests.
var allEnvVars = []string{
	"FOUNDRY_TRACKER", "FOUNDRY_GITHUB_TOKEN", "FOUNDRY_GITHUB_REPO",
	"FOUNDRY_DATABASE_URL", "FOUNDRY_STATE_DIR", "FOUNDRY_WORKDIR", "FOUNDRY_STALE_THRESHOLD",
	"FOUNDRY_POLL_INTERVAL", "FOUNDRY_IDLE_POLL_INTERVAL", "FOUNDRY_MAX_ITERATIONS",
	"FOUNDRY_CLAUDE_BIN", "FOUNDRY_ANTHROPIC_API_KEY", "FOUNDRY_NATS_URL",
	"FOUNDRY_SNAPSHOT_INTERVAL", "FOUNDRY_SNAPSHOT_S3_BUCKET",
	"FOUNDRY_SNAPSHOT_S3_ENDPOINT", "FOUNDRY_SNAPSHOT_S3_REGION", "FOUNDRY_SNAPSHOT_S3_KEY",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, c *Config)
	}{
		{
			name:    "GitHubTrackerMissingToken",
			env:     map[string]string{"FOUNDRY_GITHUB_REPO": "acme/widgets"},
			wantErr: true,
		},
		{
			name:    "GitHubTrackerMissingRepo",
			env:     map[string]string{"FOUNDRY_GITHUB_TOKEN": "tok"},
			wantErr: true,
		},
		{
			name: "GitHubTrackerDefaults",
			env: map[string]string{
				"FOUNDRY_GITHUB_TOKEN": "tok",
				"FOUNDRY_GITHUB_REPO":  "acme/widgets",
			},
			check: func(t *testing.T, c *Config) {
				if c.Tracker != "github" {
					t.Errorf("Tracker = %q, want github", c.Tracker)
				}
				if c.StaleThreshold != 300*time.Second {
					t.Errorf("StaleThreshold = %v, want 300s", c.StaleThreshold)
				}
				if c.PollInterval != 30*time.Second {
					t.Errorf("PollInterval = %v, want 30s", c.PollInterval)
				}
				if c.IdlePollInterval != 60*time.Second {
					t.Errorf("IdlePollInterval = %v, want 60s", c.IdlePollInterval)
				}
				if c.MaxIterations != 100 {
					t.Errorf("MaxIterations = %d, want 100", c.MaxIterations)
				}
				if c.ClaudeBin != "claude" {
					t.Errorf("ClaudeBin = %q, want claude", c.ClaudeBin)
				}
				if c.SnapshotInterval != 3*time.Minute {
					t.Errorf("SnapshotInterval = %v, want 3m", c.SnapshotInterval)
				}
				if c.StateDir == "" {
					t.Error("StateDir should default to the home directory")
				}
			},
		},
		{
			name:    "PostgresTrackerMissingURL",
			env:     map[string]string{"FOUNDRY_TRACKER": "postgres"},
			wantErr: true,
		},
		{
			name: "PostgresTracker",
			env: map[string]string{
				"FOUNDRY_TRACKER":      "postgres",
				"FOUNDRY_DATABASE_URL": "postgres://db:5432/foundry",
			},
			check: func(t *testing.T, c *Config) {
				if c.DatabaseURL != "postgres://db:5432/foundry" {
					t.Errorf("DatabaseURL = %q", c.DatabaseURL)
				}
			},
		},
		{
			name: "MemoryTrackerNeedsNothing",
			env:  map[string]string{"FOUNDRY_TRACKER": "memory"},
		},
		{
			name:    "UnknownTracker",
			env:     map[string]string{"FOUNDRY_TRACKER": "jira"},
			wantErr: true,
		},
		{
			name: "CustomDurations",
			env: map[string]string{
				"FOUNDRY_TRACKER":            "memory",
				"FOUNDRY_STALE_THRESHOLD":    "10m",
				"FOUNDRY_POLL_INTERVAL":      "5s",
				"FOUNDRY_IDLE_POLL_INTERVAL": "2m",
				"FOUNDRY_MAX_ITERATIONS":     "25",
			},
			check: func(t *testing.T, c *Config) {
				if c.StaleThreshold != 10*time.Minute {
					t.Errorf("StaleThreshold = %v, want 10m", c.StaleThreshold)
				}
				if c.PollInterval != 5*time.Second {
					t.Errorf("PollInterval = %v, want 5s", c.PollInterval)
				}
				if c.IdlePollInterval != 2*time.Minute {
					t.Errorf("IdlePollInterval = %v, want 2m", c.IdlePollInterval)
				}
				if c.MaxIterations != 25 {
					t.Errorf("MaxIterations = %d, want 25", c.MaxIterations)
				}
			},
		},
		{
			name: "BadDuration",
			env: map[string]string{
				"FOUNDRY_TRACKER":         "memory",
				"FOUNDRY_STALE_THRESHOLD": "five minutes",
			},
			wantErr: true,
		},
		{
			name: "BadMaxIterations",
			env: map[string]string{
				"FOUNDRY_TRACKER":        "memory",
				"FOUNDRY_MAX_ITERATIONS": "-3",
			},
			wantErr: true,
		},
		{
			name: "StateDirOverride",
			env: map[string]string{
				"FOUNDRY_TRACKER":   "memory",
				"FOUNDRY_STATE_DIR": "/var/lib/foundry",
			},
			check: func(t *testing.T, c *Config) {
				if c.StateDir != "/var/lib/foundry" {
					t.Errorf("StateDir = %q", c.StateDir)
				}
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			c, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("Load() should have failed")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load(): %v", err)
			}
			if tc.check != nil {
				tc.check(t, c)
			}
		})
	}
}

func TestPollIntervalFor(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("FOUNDRY_TRACKER", "memory")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	// The coordinator paces turns slower than the other roles by default.
	if got := c.PollIntervalFor("coordinator"); got != 60*time.Second {
		t.Errorf("coordinator interval = %v, want 60s", got)
	}
	for _, role := range []string{"worker", "gatekeeper"} {
		if got := c.PollIntervalFor(role); got != 30*time.Second {
			t.Errorf("%s interval = %v, want 30s", role, got)
		}
	}

	// An explicit interval applies to every role.
	t.Setenv("FOUNDRY_POLL_INTERVAL", "45s")
	c, err = Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	for _, role := range []string{"coordinator", "worker", "gatekeeper"} {
		if got := c.PollIntervalFor(role); got != 45*time.Second {
			t.Errorf("%s interval = %v, want 45s", role, got)
		}
	}
}

func TestLoadWorkDir(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("FOUNDRY_TRACKER", "memory")
	t.Setenv("FOUNDRY_WORKDIR", "/srv/clone")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if c.WorkDir != "/srv/clone" {
		t.Errorf("WorkDir = %q, want /srv/clone", c.WorkDir)
	}
}
