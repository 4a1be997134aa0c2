package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"readycheck/internal/config"
	"readycheck/internal/environment"
	"readycheck/internal/reporting"
	"readycheck/pkg/logging"
)

func newEnvCmd() *cobra.Command {
	var output string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "env",
		Short: "Detect and print the current environment context",
		Long: `Runs environment detection — explicit override variable, Cloud Run
metadata, naming conventions — and prints the detected environment with its
confidence score and the signals that produced it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnv(cmd.Context(), output, verbose)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text",
		"output format: text or json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	return cmd
}

func runEnv(ctx context.Context, output string, verbose bool) error {
	if output != "text" && output != "json" {
		return fmt.Errorf("unknown output format %q: use text or json", output)
	}

	logging.InitForCLI(logLevel(verbose), os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	detector := environment.NewDetector(environment.DetectorOptions{
		EnvVarName:   cfg.Environment.OverrideVar,
		ProbeTimeout: cfg.Environment.ProbeTimeout.Std(),
	})
	envCtx, err := detector.Detect(ctx)
	if err != nil {
		return err
	}

	if output == "json" {
		return reporting.WriteJSON(os.Stdout, envCtx)
	}
	reporting.WriteEnvironmentContext(os.Stdout, envCtx)
	return nil
}
