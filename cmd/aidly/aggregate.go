package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidly/aidly-api/internal/models"
)

const dateLayout = "2006-01-02"

func newAggregateCommand() *cobra.Command {
	var (
		date       string
		metricType string
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Run a metrics aggregation synchronously",
		Long:  `Recompute metric roll-ups for one day. Defaults to yesterday and every metric type.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := time.Now().UTC().AddDate(0, 0, -1)
			if date != "" {
				parsed, err := time.ParseInLocation(dateLayout, date, time.UTC)
				if err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
				}
				day = parsed
			}
			t := models.MetricType(metricType)
			if !t.Valid() {
				return fmt.Errorf("invalid --type %q", metricType)
			}

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

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Aggregation.Timeout)
			defer cancel()
			result, err := a.aggregation.Aggregate(ctx, day, t)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "aggregated %s in %s\n", result.Date.Format(dateLayout), result.Duration.Round(time.Millisecond))
			for _, mt := range result.Types {
				fmt.Fprintf(out, "  %-8s %d rows\n", mt, result.Rows[string(mt)])
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day to aggregate (YYYY-MM-DD, UTC); defaults to yesterday")
	cmd.Flags().StringVarP(&metricType, "type", "t", string(models.MetricTypeAll), "Metric type: daily, hourly, agents, clients, sla or all")
	return cmd
}
