// cmd/triagectl/registry.go
package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"medical-triage/pkg/registry"
)

func newRegistryCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the activity registry used to check Zeebe job input",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "configs/activity-registry.json", "path to the registry file")

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check ids, task types and schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return err
			}
			problems := reg.Check()
			for _, p := range problems {
				cmd.PrintErrln("  -", p)
			}
			if len(problems) > 0 {
				return fmt.Errorf("registry %s has %d problem(s)", path, len(problems))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registry %s is valid (%d activities)\n", path, len(reg.Activities))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered activities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return err
			}
			activities := append([]registry.Activity{}, reg.Activities...)
			sort.Slice(activities, func(i, j int) bool {
				return activities[i].TaskType < activities[j].TaskType
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK TYPE\tCATEGORY\tTIMEOUT\tRETRIES\tSTATUS")
			for _, a := range activities {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", a.TaskType, a.Category, a.Timeout, a.Retries, a.ImplementationStatus)
			}
			return w.Flush()
		},
	})
	return cmd
}
