// cmd/triagectl/triage.go
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"medical-triage/internal/models"
	triagequery "medical-triage/internal/workers/triage/triage-query"
)

func newProcessCmd(opts *rootOptions) *cobra.Command {
	var (
		maxResults int
		facility   string
		textOnly   bool
	)
	cmd := &cobra.Command{
		Use:   "process <query>",
		Short: "Run the full triage pipeline for one query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.Service.Triage(cmd.Context(), triagequery.TriageRequest{
				Text:       strings.Join(args, " "),
				MaxResults: maxResults,
				FacilityID: facility,
			})
			if err != nil {
				return err
			}
			if textOnly {
				fmt.Fprintln(cmd.OutOrStdout(), resp.ResponseText)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "limit ranked documents (0 uses the ranking default)")
	cmd.Flags().StringVar(&facility, "facility", "", "facility to escalate emergencies to")
	cmd.Flags().BoolVar(&textOnly, "text", false, "print only the response text")
	return cmd
}

func newEmergencyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "emergency <query>",
		Short: "Screen a query for emergency indicators only",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			check, err := a.Service.CheckEmergency(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), check)
		},
	}
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <query>",
		Short: "Show the normalized symptoms, language and query type",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			extraction, err := a.Service.ExtractSymptoms(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), extraction)
		},
	}
}

func newAssessCmd(opts *rootOptions) *cobra.Command {
	var (
		disease  string
		language string
	)
	cmd := &cobra.Command{
		Use:   "assess <symptom>...",
		Short: "Assess severity for canonical symptom tags",
		Long: `Assess severity for canonical symptom tags. Multi-word tags must be quoted.

Examples:
  triagectl assess --disease malaria fever chills "high fever"
  triagectl assess fever cough`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			assessments, err := a.Service.Assess(args, disease, models.Language(language))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), assessments)
		},
	}
	cmd.Flags().StringVar(&disease, "disease", "", "disease profile (default: every profile)")
	cmd.Flags().StringVar(&language, "language", "en", "language for disclaimers")
	return cmd
}
