package main

import (
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/agent"
	"github.com/alfredjeanlab/foundry/internal/config"
)

var gatekeeperCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Run the gatekeeper agent that reviews and lands change sets",
	Long: `Run the gatekeeper agent. The gatekeeper merges approved change sets,
closes the tasks they resolve, and hands pending change sets to the engine
for review. It never merges anything the review state does not approve.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(func(cfg *config.Config) agent.Role {
			return &agent.GatekeeperRole{Name: agentName}
		})
	},
}

func init() {
	registerAgentFlags(gatekeeperCmd)
}
