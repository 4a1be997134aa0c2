package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"readycheck/internal/config"
	"readycheck/internal/health"
	"readycheck/internal/reporting"
	"readycheck/pkg/logging"
)

func newStatusCmd() *cobra.Command {
	var services []string
	var output string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a single-attempt health snapshot of every service",
		Long: `Probes each declared service exactly once, with no retries and no
golden path. Faster than validate, at the cost of certainty: a transiently
slow service shows as unhealthy here but may pass a full validation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), services, output, verbose)
		},
	}

	cmd.Flags().StringSliceVar(&services, "services", nil,
		"show only these services (default: all declared services)")
	cmd.Flags().StringVarP(&output, "output", "o", "text",
		"output format: text or json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	return cmd
}

func runStatus(ctx context.Context, services []string, output string, verbose bool) error {
	if output != "text" && output != "json" {
		return fmt.Errorf("unknown output format %q: use text or json", output)
	}

	subset, err := parseServices(services)
	if err != nil {
		return err
	}

	logging.InitForCLI(logLevel(verbose), os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	checker, err := buildChecker(cfg, nil)
	if err != nil {
		return err
	}

	app := health.AppStateFunc(func(ctx context.Context) error { return nil })
	summary, err := checker.ServiceStatusSummary(ctx, subset, app)
	if err != nil {
		return err
	}

	if output == "json" {
		return reporting.WriteJSON(os.Stdout, summary)
	}
	reporting.WriteStatusSummary(os.Stdout, summary)
	return nil
}
