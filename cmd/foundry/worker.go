package main

import (
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/agent"
	"github.com/alfredjeanlab/foundry/internal/config"
	"github.com/alfredjeanlab/foundry/internal/model"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker agent that claims and implements pending tasks",
	Long: `Run a worker agent. The worker claims one pending task at a time from the
tracker, drives the engine to implement it, and moves it to review when the
engine reports a change set. Restarting a worker with the same name resumes
its previous session and claimed task.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(func(cfg *config.Config) agent.Role {
			return &agent.WorkerRole{Slug: model.Slugify(agentName)}
		})
	},
}

func init() {
	registerAgentFlags(workerCmd)
}
