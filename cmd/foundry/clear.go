package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/config"
	"github.com/alfredjeanlab/foundry/internal/heartbeat"
	"github.com/alfredjeanlab/foundry/internal/session"
)

var (
	clearAll    bool
	clearDryRun bool
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove exited agents' heartbeat and session records",
	Long: `Remove heartbeat and session records for agents that have exited. With
--all, live records go too; use that only when the whole fleet is known to
be down, since a running agent whose records vanish will start over.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		hb := heartbeat.NewStore(cfg.StateDir)
		sess := session.NewStore(cfg.StateDir)

		records, err := hb.List(project)
		if err != nil {
			return err
		}

		removed := 0
		for _, rec := range records {
			if !clearAll && !rec.Status.IsTerminal() {
				continue
			}
			if clearDryRun {
				fmt.Printf("would remove %s %q (%s)\n", rec.AgentType, rec.Name, rec.Status)
				removed++
				continue
			}
			key := heartbeat.Key{Project: rec.Project, AgentType: rec.AgentType, Name: rec.Name}
			if _, err := hb.Delete(key); err != nil {
				return err
			}
			if _, err := sess.Delete(rec.AgentType, rec.Name, rec.Project); err != nil {
				return err
			}
			fmt.Printf("removed %s %q (%s)\n", rec.AgentType, rec.Name, rec.Status)
			removed++
		}

		if removed == 0 {
			fmt.Println("nothing to clear")
		} else if clearDryRun {
			fmt.Printf("%d records would be removed\n", removed)
		}
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearAll, "all", false, "remove live records too, not just exited ones")
	clearCmd.Flags().BoolVar(&clearDryRun, "dry-run", false, "print what would be removed without removing it")
}
