package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/claim"
	"github.com/alfredjeanlab/foundry/internal/config"
	"github.com/alfredjeanlab/foundry/internal/model"
)

var releaseUnassign bool

var releaseCmd = &cobra.Command{
	Use:   "release <unit-id>...",
	Short: "Return claimed work units to the pending pool",
	Long: `Return one or more claimed work units to pending. Claims are advisory and
survive agent crashes, so when a stale agent is gone for good an operator
releases its units by hand. The assignee label is kept unless --unassign is
given, so a restarted agent with the same name picks its units back up first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		for _, arg := range args {
			id, err := strconv.Atoi(arg)
			if err != nil {
				return fmt.Errorf("invalid unit id %q", arg)
			}
			unit, err := store.GetUnit(ctx, id)
			if err != nil {
				return err
			}
			if err := claim.Release(ctx, store, id); err != nil {
				return err
			}
			if releaseUnassign && unit.Assignee() != "" {
				remove := []string{model.AssigneeLabel(unit.Assignee())}
				if err := store.UpdateLabels(ctx, id, nil, remove); err != nil {
					return err
				}
			}
			fmt.Printf("released unit #%d (%s)\n", id, unit.Title)
		}
		return nil
	},
}

func init() {
	releaseCmd.Flags().BoolVar(&releaseUnassign, "unassign", false, "also remove the assignee label")
}
