package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aidly/aidly-api/internal/models"
	"github.com/aidly/aidly-api/internal/poller"
)

func newWatchCommand() *cobra.Command {
	var (
		apiURL        string
		recipientID   string
		recipientType string
		interval      time.Duration
		verbose       bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the unread notification count and report new arrivals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if recipientID == "" {
				return fmt.Errorf("--recipient is required")
			}
			kind := models.NotifiableType(recipientType)
			if kind != models.NotifiableUser && kind != models.NotifiableClient {
				return fmt.Errorf("invalid --type %q, expected user or client", recipientType)
			}

			log := zap.NewNop()
			if verbose {
				dev, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				log = dev
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			w := &poller.Watcher{
				Interval: interval,
				Fetch:    poller.UnreadCount(&http.Client{Timeout: 10 * time.Second}, apiURL, models.Recipient{ID: recipientID, Type: kind}),
				OnIncrease: func(delta, total int) {
					fmt.Fprintf(out, "%s  %d new notification(s), %d unread\n", time.Now().Format(time.Kitchen), delta, total)
				},
				Logger: log,
			}
			fmt.Fprintf(out, "watching unread notifications for %s %s every %s\n", kind, recipientID, interval)
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&apiURL, "api", "http://localhost:8080/api/v1", "API base URL including the prefix")
	cmd.Flags().StringVarP(&recipientID, "recipient", "r", "", "Recipient id")
	cmd.Flags().StringVarP(&recipientType, "type", "t", string(models.NotifiableUser), "Recipient type: user or client")
	cmd.Flags().DurationVarP(&interval, "interval", "i", poller.DefaultInterval, "Polling interval")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log failed polls")
	return cmd
}
