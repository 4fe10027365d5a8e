package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/insurance-leads-platform/internal/leads"
	"github.com/wolfman30/insurance-leads-platform/internal/submission"
)

func newSubmitCmd() *cobra.Command {
	var (
		form           leads.RawFormInput
		requireSubject bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a lead through the full pipeline",
		Long: `Submit runs validation, rate limiting, enrichment and delivery exactly
as the API does. Without --ip the caller's public address is looked up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := loadPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer p.Close()

			res := p.Service.Submit(cmd.Context(), form, submission.WithRequireSubject(requireSubject))
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("submission failed: %s", res.Category)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.Name, "name", "", "lead name")
	f.StringVar(&form.Email, "email", "", "lead email")
	f.StringVar(&form.Phone, "phone", "", "lead phone")
	f.StringVar(&form.Operator, "operator", "", "insurance operator display name")
	f.StringVar(&form.Subject, "subject", "", "subject")
	f.StringVar(&form.Message, "message", "", "free-text message")
	f.StringVar(&form.SourcePage, "source-page", "", "landing page URL (UTM parameters are extracted)")
	f.StringVar(&form.ClientIP, "ip", "", "client IP to record instead of looking it up")
	f.BoolVar(&requireSubject, "require-subject", false, "reject the lead when subject is empty")
	return cmd
}
