// cmd/triagectl/root.go
package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"medical-triage/internal/app"
	"medical-triage/internal/common/config"
	"medical-triage/internal/common/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "triagectl",
		Short: "Operate the multilingual medical triage pipeline",
		Long: `triagectl runs the triage pipeline locally and manages its backing stores.

Examples:
  triagectl process "I have fever and headache for 2 days"
  triagectl emergency "patient is unconscious"
  triagectl assess --disease malaria fever chills sweating
  triagectl index --file extra-documents.yaml
  triagectl registry validate`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is configs/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		newProcessCmd(opts),
		newEmergencyCmd(opts),
		newExtractCmd(opts),
		newAssessCmd(opts),
		newIndexCmd(opts),
		newRegistryCmd(),
		newStartCmd(opts),
	)
	return root
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFromFile(o.configPath)
	}
	return config.Load()
}

func (o *rootOptions) logger() logger.Logger {
	return logger.NewFromOptions(logger.Options{Level: o.logLevel, Format: "console", Output: "stderr"})
}

// buildApp wires the pipeline with a short connection schedule; the CLI
// should fail fast when a backend is down.
func (o *rootOptions) buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, o.logger(), app.Options{ConnectRetries: 2, RetryDelay: 500 * time.Millisecond})
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
