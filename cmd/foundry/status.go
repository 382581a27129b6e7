package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/config"
	"github.com/alfredjeanlab/foundry/internal/heartbeat"
	"github.com/alfredjeanlab/foundry/internal/session"
	"github.com/alfredjeanlab/foundry/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the agent roster for a project",
	Args:  cobra.NoArgs,
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
		sort.Slice(records, func(i, j int) bool {
			if records[i].AgentType != records[j].AgentType {
				return records[i].AgentType < records[j].AgentType
			}
			return records[i].Name < records[j].Name
		})

		now := time.Now()
		if jsonOutput {
			type row struct {
				*heartbeat.Record
				Stale bool `json:"stale"`
			}
			rows := make([]row, 0, len(records))
			for _, rec := range records {
				stale := !rec.Status.IsTerminal() && now.Sub(rec.LastUpdate) > cfg.StaleThreshold
				rows = append(rows, row{Record: rec, Stale: stale})
			}
			data, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(records) == 0 {
			fmt.Printf("no agents in project %q\n", project)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tTYPE\tSTATUS\tAGE\tTASK\tCHANGE SET\tDETAILS")
		for _, rec := range records {
			age := now.Sub(rec.LastUpdate).Round(time.Second)
			status := ui.RenderPhase(rec.Status)
			if !rec.Status.IsTerminal() && age > cfg.StaleThreshold {
				status = ui.RenderStale("stale (" + rec.Status.String() + ")")
			}
			task, pr := "-", "-"
			if rec.CurrentIssue != nil {
				task = fmt.Sprintf("#%d", *rec.CurrentIssue)
			}
			if rec.CurrentPR != nil {
				pr = fmt.Sprintf("#%d", *rec.CurrentPR)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				rec.Name, rec.AgentType, status, age, task, pr, rec.Details)
		}
		w.Flush()

		sessions, err := sess.List(project)
		if err == nil && len(sessions) > 0 {
			var cost float64
			for _, s := range sessions {
				if s.TotalCostUSD != nil {
					cost += *s.TotalCostUSD
				}
			}
			fmt.Printf("\n%d agents, %d saved sessions", len(records), len(sessions))
			if cost > 0 {
				fmt.Printf(", $%.2f total", cost)
			}
			fmt.Println()
		}
		return nil
	},
}
