package main

import (
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/model"
	"github.com/alfredjeanlab/foundry/internal/ui"
)

var (
	project    string
	agentName  string
	jsonOutput bool
	verbose    bool
)

func defaultProject() string {
	if p := os.Getenv("FOUNDRY_PROJECT"); p != "" {
		return p
	}
	return "default"
}

// defaultAgentName derives an agent name from git identity.
func defaultAgentName() string {
	out, err := exec.Command("git", "config", "user.name").Output()
	if err == nil {
		if name := model.Slugify(strings.TrimSpace(string(out))); name != "" {
			return name
		}
	}
	host, err := os.Hostname()
	if err == nil && host != "" {
		return model.Slugify(host)
	}
	return "agent"
}

var rootCmd = &cobra.Command{
	Use:   "foundry",
	Short: "Multi-agent coordination over a shared task tracker",
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		return applyActiveProfile()
	}
	rootCmd.PersistentFlags().StringVar(&project, "project", defaultProject(), "project namespace for heartbeats and sessions")
	rootCmd.PersistentFlags().StringVar(&agentName, "name", defaultAgentName(), "agent name")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(coordinatorCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(gatekeeperCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
