package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/wolfman30/insurance-leads-platform/cmd/mainconfig"
	appconfig "github.com/wolfman30/insurance-leads-platform/internal/config"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "leadctl - lead pipeline operations",
		Long:          `leadctl submits test leads, probes the lead store and manages the fallback journal.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newSubmitCmd(),
		newProbeCmd(),
		newNormalizeCmd(),
		newJournalCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "leadctl version %s\n", version)
			if commit != "unknown" {
				fmt.Fprintf(out, "  commit: %s\n", commit)
			}
			if buildTime != "unknown" {
				fmt.Fprintf(out, "  built:  %s\n", buildTime)
			}
		},
	}
}

// loadPipeline reads and validates the environment configuration and wires
// the same pipeline the API server runs.
func loadPipeline(ctx context.Context) (*mainconfig.Pipeline, *appconfig.Config, error) {
	cfg := appconfig.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := logging.NewWithFormat(cfg.LogLevel, "text")
	p, err := mainconfig.BuildPipeline(ctx, cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return p, cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
