package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BuzzLyutic/task-lifecycle-engine/internal/snapshot"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a JSONL snapshot of all tasks and dependencies",
	Long: `Write a JSONL snapshot to --out, to the configured S3 bucket
(SNAPSHOT_S3_BUCKET), or to both.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var dests []snapshot.Destination
		if exportOut != "" {
			dests = append(dests, snapshot.FileDestination{Path: exportOut})
		}
		if cfg.SnapshotS3Bucket != "" {
			s3Dest, err := snapshot.NewS3Destination(ctx,
				cfg.SnapshotS3Bucket,
				cfg.SnapshotS3Key,
				cfg.SnapshotS3Region,
				cfg.SnapshotS3Endpoint,
			)
			if err != nil {
				return err
			}
			dests = append(dests, s3Dest)
		}
		if len(dests) == 0 {
			return errors.New("no snapshot destination: pass --out or set SNAPSHOT_S3_BUCKET")
		}

		store, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := snapshot.NewExporter(store, logger, dests...).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d bytes to %d destination(s)\n", n, len(dests))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write the snapshot to this file")
}
