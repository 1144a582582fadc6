// cmd/triagectl/start.go
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"medical-triage/internal/common/camunda"
	triagequery "medical-triage/internal/workers/triage/triage-query"
)

func newStartCmd(opts *rootOptions) *cobra.Command {
	var facility string
	cmd := &cobra.Command{
		Use:   "start <query>",
		Short: "Start a triage process instance on the Zeebe broker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			client, err := camunda.NewClient(cfg.Camunda)
			if err != nil {
				return err
			}
			defer client.Close()

			key, err := client.StartTriage(cmd.Context(), cfg.Camunda.ProcessID, triagequery.TriageRequest{
				Text:       strings.Join(args, " "),
				FacilityID: facility,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s instance %d\n", cfg.Camunda.ProcessID, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&facility, "facility", "", "facility to escalate emergencies to")
	return cmd
}
