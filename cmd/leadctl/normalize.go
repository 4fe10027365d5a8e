package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wolfman30/insurance-leads-platform/internal/leads"
)

func newNormalizeCmd() *cobra.Command {
	var aliasesFile string
	cmd := &cobra.Command{
		Use:   "normalize <operator>...",
		Short: "Show the canonical identifier for operator display names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if aliasesFile == "" {
				aliasesFile = os.Getenv("OPERATOR_ALIASES_FILE")
			}
			var extra map[string]string
			if aliasesFile != "" {
				loaded, err := leads.LoadAliases(aliasesFile)
				if err != nil {
					return err
				}
				extra = loaded
			}
			n := leads.NewNormalizer(extra)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INPUT\tOPERATOR\tKNOWN")
			for _, display := range args {
				fmt.Fprintf(w, "%s\t%s\t%v\n", display, n.Normalize(display), n.Known(display))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&aliasesFile, "aliases", "", "YAML alias file (defaults to OPERATOR_ALIASES_FILE)")
	return cmd
}
