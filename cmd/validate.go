package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"readycheck/internal/config"
	"readycheck/internal/dependency"
	"readycheck/internal/environment"
	"readycheck/internal/health"
	"readycheck/internal/metrics"
	"readycheck/internal/orchestrator"
	"readycheck/internal/reporting"
	"readycheck/internal/tui"
	"readycheck/pkg/logging"
)

type validateFlags struct {
	services       []string
	skipGoldenPath bool
	output         string
	watch          bool
	timeout        time.Duration
	verbose        bool
}

func newValidateCmd() *cobra.Command {
	flags := &validateFlags{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the full phased dependency validation",
		Long: `Resolves the service dependency graph into phases, probes each phase's
services concurrently with retries, halts on critical-phase failures, and
finishes with golden-path validation. Exits non-zero when validation fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.services, "services", nil,
		"validate only these services (default: all declared services)")
	cmd.Flags().BoolVar(&flags.skipGoldenPath, "skip-golden-path", false,
		"skip golden-path validation after the phased run")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "text",
		"output format: text or json")
	cmd.Flags().BoolVar(&flags.watch, "watch", false,
		"show live progress in a terminal UI")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 2*time.Minute,
		"overall deadline for the validation run")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false,
		"enable debug logging")

	return cmd
}

func runValidate(ctx context.Context, flags *validateFlags) error {
	if flags.output != "text" && flags.output != "json" {
		return fmt.Errorf("unknown output format %q: use text or json", flags.output)
	}

	subset, err := parseServices(flags.services)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	skipGolden := flags.skipGoldenPath || !cfg.GoldenPathEnabled()
	app := health.AppStateFunc(func(ctx context.Context) error { return nil })

	if flags.watch {
		return runValidateWatch(ctx, cfg, subset, skipGolden, app, flags)
	}

	logging.InitForCLI(logLevel(flags.verbose), os.Stderr)

	checker, err := buildChecker(cfg, nil)
	if err != nil {
		return err
	}
	result, err := checker.ValidateServiceDependencies(ctx, subset, skipGolden, app)
	if err != nil {
		return err
	}

	if flags.output == "json" {
		if err := reporting.WriteJSON(os.Stdout, result); err != nil {
			return err
		}
	} else {
		reporting.WriteValidationReport(os.Stdout, result)
	}

	if !result.OverallSuccess {
		return fmt.Errorf("validation failed: %d of %d services unhealthy",
			len(result.FailedServices()), len(result.ServiceResults))
	}
	return nil
}

func runValidateWatch(ctx context.Context, cfg config.Config, subset []dependency.ServiceType, skipGolden bool, app health.AppState, flags *validateFlags) error {
	logs := logging.InitForTUI(logLevel(flags.verbose))
	defer logging.CloseTUIChannel()

	events := make(chan orchestrator.Event, 64)
	checker, err := buildChecker(cfg, events)
	if err != nil {
		return err
	}

	runner := func() (*orchestrator.DependencyValidationResult, error) {
		defer close(events)
		return checker.ValidateServiceDependencies(ctx, subset, skipGolden, app)
	}

	model := tui.NewModel(events, logs, runner)
	final, err := tea.NewProgram(model, tea.WithContext(ctx)).Run()
	if err != nil {
		return err
	}

	if m, ok := final.(tui.Model); ok {
		if result, runErr := m.Outcome(); runErr != nil {
			return runErr
		} else if result != nil && !result.OverallSuccess {
			return fmt.Errorf("validation failed")
		}
	}
	return nil
}

// buildChecker wires the orchestrator from configuration: detector, context
// service with per-environment overrides, retry policy, and metrics.
func buildChecker(cfg config.Config, events chan orchestrator.Event) (*orchestrator.Checker, error) {
	overrides, err := cfg.ServiceOverrides()
	if err != nil {
		return nil, err
	}

	detector := environment.NewDetector(environment.DetectorOptions{
		EnvVarName:   cfg.Environment.OverrideVar,
		ProbeTimeout: cfg.Environment.ProbeTimeout.Std(),
	})
	envSvc := environment.NewContextServiceWithOverrides(detector, overrides)

	opts := orchestrator.CheckerOptions{
		EnvService: envSvc,
		Retry:      health.NewRetryMechanismWithPolicy(envSvc, cfg.RetryPolicy()),
		Recorder:   metrics.NewRecorder(),
	}
	if events != nil {
		opts.Events = events
	}
	return orchestrator.NewChecker(opts), nil
}

func parseServices(names []string) ([]dependency.ServiceType, error) {
	var subset []dependency.ServiceType
	for _, name := range names {
		svc, err := dependency.ParseServiceType(name)
		if err != nil {
			return nil, err
		}
		subset = append(subset, svc)
	}
	return subset, nil
}

func logLevel(verbose bool) logging.LogLevel {
	if verbose {
		return logging.LevelDebug
	}
	return logging.LevelInfo
}
