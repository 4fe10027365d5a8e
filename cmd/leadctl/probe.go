package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the lead store is reachable without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := loadPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			report := p.Service.TestConnectivity(cmd.Context())
			out := cmd.OutOrStdout()
			if !report.Reachable {
				fmt.Fprintf(out, "%s: unreachable (%s): %s\n", report.Adapter, report.Category, report.Error)
				return fmt.Errorf("probe failed")
			}
			fmt.Fprintf(out, "%s: ok (%s)\n", report.Adapter, report.Latency.Round(time.Millisecond))
			return nil
		},
	}
}
