package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wolfman30/insurance-leads-platform/internal/events"
	"github.com/wolfman30/insurance-leads-platform/internal/leads"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect leads that only reached the fallback path",
	}
	cmd.AddCommand(newJournalListCmd(), newJournalAckCmd(), newJournalReplayCmd())
	return cmd
}

func newJournalListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := loadPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			entries, err := p.Journal.Pending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no pending entries")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tMETHOD\tEMAIL\tOPERATOR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.CreatedAt.Format("2006-01-02 15:04:05"), e.Method, leads.MaskEmail(e.Lead.Email), e.Lead.Operator)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}

func newJournalAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <id>",
		Short: "Mark a journal entry as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid entry id: %w", err)
			}
			p, _, err := loadPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			marked, err := p.Journal.MarkProcessed(cmd.Context(), id)
			if err != nil {
				return err
			}
			if marked {
				fmt.Fprintf(cmd.OutOrStdout(), "entry %s acknowledged\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "entry %s was already processed\n", id)
			}
			return nil
		},
	}
}

func newJournalReplayCmd() *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Retry one batch of journaled leads against the lead store",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := loadPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			replayer := events.NewReplayer(p.Journal, p.Service, nil).WithBatchSize(batch)
			n := replayer.Drain(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 25, "entries to replay")
	return cmd
}
