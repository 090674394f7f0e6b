package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"drillx/internal/cli/ui"
	"drillx/internal/client"
)

func newInfoCmd(stdout, stderr io.Writer) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show available backends and the host, or gateway status with --api",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")

			if url, _ := cmd.Flags().GetString("api"); url != "" {
				c := client.NewAPIClient(url)
				health, err := c.GetHealth(context.Background())
				if err != nil {
					return err
				}
				metrics, err := c.GetMetrics(context.Background())
				if err != nil {
					return err
				}
				if asJSON {
					return enc.Encode(map[string]interface{}{"health": health, "metrics": metrics})
				}
				fmt.Fprintf(stdout, "%s %s %s, backend %s, up %s\n", ui.Info("gateway:"), url, health.Status, health.Backend, health.Uptime)
				fmt.Fprintf(stdout, "batches:  %d ok / %d failed\n", metrics.SuccessfulBatches, metrics.FailedBatches)
				fmt.Fprintf(stdout, "lanes:    %d solved of %d\n", metrics.SolvedLanes, metrics.TotalLanes)
				fmt.Fprintf(stdout, "latency:  %.2fms average\n", metrics.AverageLatencyMs)
				return nil
			}

			s, err := newSession(cmd, stderr)
			if err != nil {
				return err
			}
			defer s.Close()

			report := s.factory.GetDetectionReport()
			if asJSON {
				return enc.Encode(report)
			}
			fmt.Fprint(stdout, ui.RenderReport(report, 0))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}
