package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/foundry/internal/config"
	"github.com/alfredjeanlab/foundry/internal/heartbeat"
	"github.com/alfredjeanlab/foundry/internal/session"
	"github.com/alfredjeanlab/foundry/internal/snapshot"
)

var (
	exportOutput string
	exportToS3   bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the project's agent state as JSONL",
	Long: `Export heartbeat and session records as a JSONL snapshot, the same format
the periodic snapshot scheduler ships. Writes to stdout by default, a file
with --output, or the configured S3 bucket with --s3.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		hb := heartbeat.NewStore(cfg.StateDir)
		sess := session.NewStore(cfg.StateDir)

		if exportToS3 {
			if cfg.SnapshotS3Bucket == "" {
				return fmt.Errorf("--s3 requires FOUNDRY_SNAPSHOT_S3_BUCKET")
			}
			ctx := context.Background()
			dest, err := snapshot.NewS3Destination(ctx,
				cfg.SnapshotS3Bucket, cfg.SnapshotS3Key, cfg.SnapshotS3Region, cfg.SnapshotS3Endpoint)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := snapshot.ExportJSONL(hb, sess, project, &buf); err != nil {
				return err
			}
			if err := dest.Write(ctx, buf.Bytes()); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "exported %d bytes to s3://%s/%s\n", buf.Len(), cfg.SnapshotS3Bucket, cfg.SnapshotS3Key)
			return nil
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return snapshot.ExportJSONL(hb, sess, project, out)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write the snapshot to a file")
	exportCmd.Flags().BoolVar(&exportToS3, "s3", false, "ship the snapshot to the configured S3 bucket")
	exportCmd.MarkFlagsMutuallyExclusive("output", "s3")
}
