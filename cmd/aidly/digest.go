package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newDigestCommand() *cobra.Command {
	var retry bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send queued email digests now",
		Long:  `Batch every queued email notification into one digest per recipient. With --retry the delivery retry pass runs first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			a, err := newApp(cfg, log, false)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if retry {
				summary, err := a.notifications.ProcessQueue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "retried %s notifications: %s delivered, %s failed\n",
					humanize.Comma(int64(summary.Attempted)), humanize.Comma(int64(summary.Delivered)), humanize.Comma(int64(summary.Failed)))
			}

			summary, err := a.digests.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "sent %s digests covering %s notifications (%d deferred, %d failed)\n",
				humanize.Comma(int64(summary.Recipients)), humanize.Comma(int64(summary.Notifications)), summary.Deferred, summary.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&retry, "retry", false, "Retry pending and failed deliveries before sweeping")
	return cmd
}
