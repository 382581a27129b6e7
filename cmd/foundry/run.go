package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/agent"
	"github.com/alfredjeanlab/foundry/internal/classify"
	"github.com/alfredjeanlab/foundry/internal/config"
	"github.com/alfredjeanlab/foundry/internal/engine"
	"github.com/alfredjeanlab/foundry/internal/events"
	"github.com/alfredjeanlab/foundry/internal/heartbeat"
	"github.com/alfredjeanlab/foundry/internal/session"
	"github.com/alfredjeanlab/foundry/internal/snapshot"
	"github.com/alfredjeanlab/foundry/internal/taskstore"
	"github.com/alfredjeanlab/foundry/internal/taskstore/postgres"
	"github.com/alfredjeanlab/foundry/internal/ui"
)

var (
	headless      bool
	resumeSession bool
	newSession    bool
	workDir       string
)

// registerAgentFlags adds the flags shared by the agent-running commands.
func registerAgentFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&headless, "headless", false, "never prompt on stdin; poll past questions instead")
	cmd.Flags().BoolVar(&resumeSession, "resume", false, "require resuming the saved engine session")
	cmd.Flags().BoolVar(&newSession, "new-session", false, "discard any saved engine session and start fresh")
	cmd.Flags().StringVar(&workDir, "dir", "", "working directory for engine turns, usually the project clone")
	cmd.MarkFlagsMutuallyExclusive("resume", "new-session")
}

// openTaskStore selects the tracker backend from config.
func openTaskStore(ctx context.Context, cfg *config.Config) (taskstore.Store, error) {
	switch cfg.Tracker {
	case "github":
		return taskstore.NewGitHubStore(ctx, cfg.GitHubToken, cfg.GitHubRepo)
	case "postgres":
		return postgres.New(cfg.DatabaseURL)
	case "memory":
		return taskstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown tracker %q", cfg.Tracker)
	}
}

func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.NATSURL == "" {
		return &events.NoopPublisher{}
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		logger.Warn("event bus unavailable, continuing without it", "url", cfg.NATSURL, "err", err)
		return &events.NoopPublisher{}
	}
	return pub
}

func newClassifier(cfg *config.Config) (classify.Classifier, error) {
	if cfg.AnthropicAPIKey == "" {
		return classify.Heuristic{}, nil
	}
	return classify.NewAnthropic(cfg.AnthropicAPIKey, "", "")
}

// resolveSession applies the --resume/--new-session choice before the loop
// starts. With neither flag, an interactive terminal gets asked; everyone
// else resumes automatically, since unattended restarts are the point of
// persisted sessions.
func resolveSession(sessions *session.Store, agentType string) error {
	rec, err := sessions.Get(agentType, agentName, project)
	if err != nil {
		slog.Warn("saved session unreadable, starting fresh", "err", err)
		rec = nil
	}

	switch {
	case newSession:
		if _, err := sessions.Delete(agentType, agentName, project); err != nil {
			return err
		}
	case resumeSession:
		if rec == nil {
			return fmt.Errorf("no saved session for %s %q in project %q", agentType, agentName, project)
		}
	default:
		if rec == nil || headless || !ui.IsInteractive() {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Continue previous session from %s? [y/N] ", rec.LastRun.Format("2006-01-02 15:04"))
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
		default:
			if _, err := sessions.Delete(agentType, agentName, project); err != nil {
				return err
			}
		}
	}
	return nil
}

// runAgent wires storage, engine, events, and snapshots around the given
// role and runs the loop until it exits. buildRole gets the loaded config so
// roles can pick up thresholds from it.
func runAgent(buildRole func(*config.Config) agent.Role) error {
	logger := slog.Default()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openTaskStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}
	defer store.Close()

	classifier, err := newClassifier(cfg)
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	pub := newPublisher(cfg, logger)
	defer pub.Close()

	heartbeats := heartbeat.NewStore(cfg.StateDir)
	sessions := session.NewStore(cfg.StateDir)

	role := buildRole(cfg)
	if err := resolveSession(sessions, role.Type()); err != nil {
		return err
	}

	if cfg.SnapshotS3Bucket != "" && cfg.SnapshotInterval > 0 {
		dest, err := snapshot.NewS3Destination(ctx,
			cfg.SnapshotS3Bucket, cfg.SnapshotS3Key, cfg.SnapshotS3Region, cfg.SnapshotS3Endpoint)
		if err != nil {
			return fmt.Errorf("snapshot destination: %w", err)
		}
		sched := snapshot.NewScheduler(heartbeats, sessions, project,
			[]snapshot.Destination{dest}, cfg.SnapshotInterval, logger)
		sched.Start()
		defer sched.Stop()
	}

	var input agent.InputReader
	if !headless && ui.IsInteractive() {
		input = &agent.TerminalInput{In: os.Stdin, Out: os.Stderr}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	dir := workDir
	if dir == "" {
		dir = cfg.WorkDir
	}

	loop := &agent.Loop{
		Role:             role,
		Name:             agentName,
		Project:          project,
		Store:            store,
		Runner:           &engine.ClaudeRunner{Bin: cfg.ClaudeBin, Logger: logger},
		Classifier:       classifier,
		Heartbeats:       heartbeats,
		Sessions:         sessions,
		Events:           pub,
		Logger:           logger,
		Input:            input,
		Dir:              dir,
		PollInterval:     cfg.PollIntervalFor(role.Type()),
		IdlePollInterval: cfg.IdlePollInterval,
		MaxIterations:    cfg.MaxIterations,
		Signals:          sigCh,
	}
	return loop.Run(ctx)
}
