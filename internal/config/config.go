// Package config loads agent configuration from FOUNDRY_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// Tracker selection
	Tracker     string // FOUNDRY_TRACKER ("github", "postgres", or "memory"; default "github")
	GitHubToken string // FOUNDRY_GITHUB_TOKEN (required for the github tracker)
	GitHubRepo  string // FOUNDRY_GITHUB_REPO ("owner/repo", required for the github tracker)
	DatabaseURL string // FOUNDRY_DATABASE_URL (required for the postgres tracker)

	// Agent behavior
	StateDir         string        // FOUNDRY_STATE_DIR (default ~/.foundry)
	WorkDir          string        // FOUNDRY_WORKDIR (engine working directory; default process cwd)
	StaleThreshold   time.Duration // FOUNDRY_STALE_THRESHOLD (default 300s)
	PollInterval     time.Duration // FOUNDRY_POLL_INTERVAL (default 30s; 60s for the coordinator)
	IdlePollInterval time.Duration // FOUNDRY_IDLE_POLL_INTERVAL (default 60s)
	MaxIterations    int           // FOUNDRY_MAX_ITERATIONS (default 100)

	// pollIntervalSet records an explicit FOUNDRY_POLL_INTERVAL, which
	// overrides the per-role default.
	pollIntervalSet bool

	// Engine
	ClaudeBin string // FOUNDRY_CLAUDE_BIN (default "claude")

	// Classifier
	AnthropicAPIKey string // FOUNDRY_ANTHROPIC_API_KEY (optional; heuristic classifier when empty)

	// Events
	NATSURL string // FOUNDRY_NATS_URL (optional, empty = no events)

	// Snapshot settings
	SnapshotInterval   time.Duration // FOUNDRY_SNAPSHOT_INTERVAL (default 3m; 0 = disabled)
	SnapshotS3Bucket   string        // FOUNDRY_SNAPSHOT_S3_BUCKET (enables S3 when set)
	SnapshotS3Endpoint string        // FOUNDRY_SNAPSHOT_S3_ENDPOINT (custom endpoint for MinIO)
	SnapshotS3Region   string        // FOUNDRY_SNAPSHOT_S3_REGION (default "us-east-1")
	SnapshotS3Key      string        // FOUNDRY_SNAPSHOT_S3_KEY (default "foundry/agents.jsonl")
}

func Load() (*Config, error) {
	c := &Config{
		Tracker:            envOrDefault("FOUNDRY_TRACKER", "github"),
		GitHubToken:        os.Getenv("FOUNDRY_GITHUB_TOKEN"),
		GitHubRepo:         os.Getenv("FOUNDRY_GITHUB_REPO"),
		DatabaseURL:        os.Getenv("FOUNDRY_DATABASE_URL"),
		ClaudeBin:          envOrDefault("FOUNDRY_CLAUDE_BIN", "claude"),
		AnthropicAPIKey:    os.Getenv("FOUNDRY_ANTHROPIC_API_KEY"),
		NATSURL:            os.Getenv("FOUNDRY_NATS_URL"),
		SnapshotS3Bucket:   os.Getenv("FOUNDRY_SNAPSHOT_S3_BUCKET"),
		SnapshotS3Endpoint: os.Getenv("FOUNDRY_SNAPSHOT_S3_ENDPOINT"),
		SnapshotS3Region:   envOrDefault("FOUNDRY_SNAPSHOT_S3_REGION", "us-east-1"),
		SnapshotS3Key:      envOrDefault("FOUNDRY_SNAPSHOT_S3_KEY", "foundry/agents.jsonl"),
	}

	switch c.Tracker {
	case "github":
		if c.GitHubToken == "" {
			return nil, fmt.Errorf("FOUNDRY_GITHUB_TOKEN is required for the github tracker")
		}
		if c.GitHubRepo == "" {
			return nil, fmt.Errorf("FOUNDRY_GITHUB_REPO is required for the github tracker")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("FOUNDRY_DATABASE_URL is required for the postgres tracker")
		}
	case "memory":
		// Nothing to configure; in-process store for dry runs.
	default:
		return nil, fmt.Errorf("FOUNDRY_TRACKER must be github, postgres, or memory, got %q", c.Tracker)
	}

	stateDir := os.Getenv("FOUNDRY_STATE_DIR")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		stateDir = filepath.Join(home, ".foundry")
	}
	c.StateDir = stateDir

	c.WorkDir = os.Getenv("FOUNDRY_WORKDIR")

	var err error
	if c.StaleThreshold, err = durationEnv("FOUNDRY_STALE_THRESHOLD", 300*time.Second); err != nil {
		return nil, err
	}
	c.pollIntervalSet = os.Getenv("FOUNDRY_POLL_INTERVAL") != ""
	if c.PollInterval, err = durationEnv("FOUNDRY_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if c.IdlePollInterval, err = durationEnv("FOUNDRY_IDLE_POLL_INTERVAL", 60*time.Second); err != nil {
		return nil, err
	}
	if c.SnapshotInterval, err = durationEnv("FOUNDRY_SNAPSHOT_INTERVAL", 3*time.Minute); err != nil {
		return nil, err
	}

	c.MaxIterations = 100
	if v := os.Getenv("FOUNDRY_MAX_ITERATIONS"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &c.MaxIterations); err != nil || c.MaxIterations < 1 {
			return nil, fmt.Errorf("FOUNDRY_MAX_ITERATIONS: invalid value %q", v)
		}
	}

	return c, nil
}

// PollIntervalFor returns the pacing interval for an agent type. The
// coordinator paces turns at 60s while the other roles use 30s; an explicit
// FOUNDRY_POLL_INTERVAL applies to every role.
func (c *Config) PollIntervalFor(agentType string) time.Duration {
	if !c.pollIntervalSet && agentType == "coordinator" {
		return 60 * time.Second
	}
	return c.PollInterval
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
