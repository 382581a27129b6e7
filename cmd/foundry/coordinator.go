package main

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/agent"
	"github.com/alfredjeanlab/foundry/internal/config"
)

var (
	coordinatorGoal     string
	coordinatorGoalFile string
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the coordinator agent that plans the backlog and watches the fleet",
	Long: `Run the coordinator agent. The coordinator breaks the project goal into
tracker tasks, re-assesses the backlog every turn, and reports agents whose
heartbeats have gone stale.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := coordinatorGoal
		if coordinatorGoalFile != "" {
			data, err := os.ReadFile(coordinatorGoalFile)
			if err != nil {
				return err
			}
			goal = strings.TrimSpace(string(data))
		}
		if goal == "" {
			return errors.New("a project goal is required (--goal or --goal-file)")
		}
		return runAgent(func(cfg *config.Config) agent.Role {
			return &agent.CoordinatorRole{Goal: goal, StaleThreshold: cfg.StaleThreshold}
		})
	},
}

func init() {
	coordinatorCmd.Flags().StringVar(&coordinatorGoal, "goal", "", "project goal to plan toward")
	coordinatorCmd.Flags().StringVar(&coordinatorGoalFile, "goal-file", "", "file containing the project goal")
	registerAgentFlags(coordinatorCmd)
	coordinatorCmd.MarkFlagsMutuallyExclusive("goal", "goal-file")
}
