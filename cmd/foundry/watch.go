package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/config"
	"github.com/alfredjeanlab/foundry/internal/events"
)

var watchTopic string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail the agent event bus",
	Long: `Subscribe to the NATS event bus and print every event as it arrives.
Useful for following a fleet live without polling status files. Requires
FOUNDRY_NATS_URL (or an active profile that sets it).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.NATSURL == "" {
			return fmt.Errorf("watch requires FOUNDRY_NATS_URL")
		}

		sub, err := events.NewNATSSubscriber(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(watchTopic)
		if err != nil {
			return err
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(os.Stderr, "watching %s on %s\n", watchTopic, cfg.NATSURL)
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				printEvent(msg)
			}
		}
	},
}

func printEvent(msg events.Message) {
	if jsonOutput {
		out, err := json.Marshal(struct {
			Topic string          `json:"topic"`
			Event json.RawMessage `json:"event"`
		}{Topic: msg.Topic, Event: msg.Data})
		if err != nil {
			return
		}
		fmt.Println(string(out))
		return
	}
	fmt.Printf("%s  %-28s %s\n", time.Now().Format("15:04:05"), msg.Topic, msg.Data)
}

func init() {
	watchCmd.Flags().StringVar(&watchTopic, "topic", "foundry.>", "topic to subscribe to (NATS wildcards allowed)")
}
