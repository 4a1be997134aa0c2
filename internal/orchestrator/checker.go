package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"readycheck/internal/dependency"
	"readycheck/internal/environment"
	"readycheck/internal/goldenpath"
	"readycheck/internal/health"
	"readycheck/internal/metrics"
	"readycheck/pkg/logging"
)

// Checker drives a full validation run: resolve the startup order, probe
// each phase's services concurrently, halt on critical-phase failures, and
// finish with golden-path validation. It never panics out of a run; failures
// of any kind land in the returned result.
type Checker struct {
	envSvc   *environment.ContextService
	resolver *dependency.Resolver
	retry    *health.RetryMechanism
	golden   *goldenpath.Validator
	recorder *metrics.Recorder

	events chan<- Event
}

// CheckerOptions configures a Checker. Zero-value fields get defaults; only
// EnvService is required.
type CheckerOptions struct {
	EnvService *environment.ContextService
	Resolver   *dependency.Resolver
	Retry      *health.RetryMechanism
	Golden     *goldenpath.Validator
	Recorder   *metrics.Recorder

	// Events receives progress notifications. Sends never block: when the
	// channel is full the event is dropped.
	Events chan<- Event
}

// NewChecker creates a Checker from options.
func NewChecker(opts CheckerOptions) *Checker {
	c := &Checker{
		envSvc:   opts.EnvService,
		resolver: opts.Resolver,
		retry:    opts.Retry,
		golden:   opts.Golden,
		recorder: opts.Recorder,
		events:   opts.Events,
	}
	if c.resolver == nil {
		c.resolver = dependency.NewResolver()
	}
	if c.retry == nil {
		c.retry = health.NewRetryMechanism(opts.EnvService)
	}
	if c.golden == nil {
		c.golden = goldenpath.NewValidator(opts.EnvService)
	}
	return c
}

func (c *Checker) emit(ev Event) {
	if c.events == nil {
		return
	}
	ev.At = time.Now()
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Checker) setState(result *DependencyValidationResult, s State) {
	result.State = s
	c.emit(Event{Type: EventStateChanged, State: s})
}

// ValidateServiceDependencies runs the full phased validation. Critical-phase
// failures halt the run before later phases; non-critical failures are
// recorded as warnings and validation continues. Unless skipGoldenPath is
// set, a successful (non-halted) run finishes with golden-path validation.
//
// Setup failures (uninitialized environment, invalid dependency declarations)
// return an error. Everything after setup is reported through the result.
func (c *Checker) ValidateServiceDependencies(ctx context.Context, subset []dependency.ServiceType, skipGoldenPath bool, app health.AppState) (result *DependencyValidationResult, err error) {
	started := time.Now()
	result = &DependencyValidationResult{
		State:        StateInit,
		StartedAt:    started,
		PhaseResults: make(map[dependency.Phase]bool),
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Orchestrator", nil, "validation run panicked: %v", r)
			if result == nil {
				result = &DependencyValidationResult{StartedAt: started}
			}
			result.OverallSuccess = false
			result.Errors = append(result.Errors, fmt.Sprintf("internal error: %v", r))
			c.setState(result, StateHalted)
			err = nil
		}
		if result == nil {
			return // setup failure, reported through err
		}
		result.Duration = time.Since(result.StartedAt)
		outcome := "success"
		if !result.OverallSuccess {
			outcome = "failure"
		}
		if err == nil {
			c.recorder.RecordRun(outcome, result.Duration)
		}
	}()

	if !c.envSvc.Initialized() {
		if initErr := c.envSvc.Initialize(ctx); initErr != nil {
			return nil, fmt.Errorf("initializing environment context: %w", initErr)
		}
	}
	envCtx, ctxErr := c.envSvc.Context()
	if ctxErr != nil {
		return nil, ctxErr
	}
	result.Environment = string(envCtx.Environment)
	result.Confidence = envCtx.ConfidenceScore

	c.setState(result, StateResolving)
	plan, planErr := c.resolver.ResolveStartupOrder(subset)
	if planErr != nil {
		return nil, planErr
	}
	logging.Info("Orchestrator", "validating %d services across %d phases in %s (confidence %.2f)",
		len(plan.Services()), len(plan.Phases), result.Environment, result.Confidence)

	c.setState(result, StateValidating)
	result.OverallSuccess = true

	failed := make(map[dependency.ServiceType]bool)
	for _, phase := range plan.Phases {
		c.emit(Event{Type: EventPhaseStarted, State: StateValidating, Phase: phase})
		phaseResults := c.validatePhase(ctx, phase, plan, failed, app)

		phaseFailed := false
		for _, sr := range phaseResults {
			result.ServiceResults = append(result.ServiceResults, sr)
			result.Warnings = append(result.Warnings, sr.Warnings...)
			result.TotalServicesChecked++
			switch {
			case !sr.Healthy:
				result.ServicesFailed++
			case sr.Result.RetryCount > 0:
				result.ServicesDegraded++
			default:
				result.ServicesHealthy++
			}
			c.recorder.RecordServiceResult(string(sr.Service), sr.Healthy, sr.Result.RetryCount)
			c.emit(Event{
				Type:    EventServiceResult,
				State:   StateValidating,
				Phase:   phase,
				Service: sr.Service,
				Healthy: sr.Healthy,
				Message: sr.Result.ErrorMessage,
			})
			if !sr.Healthy {
				phaseFailed = true
				failed[sr.Service] = true
			}
		}
		result.PhasesValidated = append(result.PhasesValidated, phase)
		result.PhaseResults[phase] = !phaseFailed
		c.emit(Event{Type: EventPhaseFinished, State: StateValidating, Phase: phase})

		if phaseFailed && phase.Critical() {
			result.OverallSuccess = false
			result.HaltedAt = phase
			result.Errors = append(result.Errors,
				fmt.Sprintf("critical %s failed; later phases were not validated", phase))
			logging.Error("Orchestrator", nil, "halting: critical %s failed", phase)
			c.setState(result, StateHalted)
			return result, nil
		}
		if phaseFailed {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s has unhealthy services; continuing in degraded mode", phase))
		}
	}

	// The golden path exercises the user journey through core, so it is only
	// meaningful when core itself was validated in this run and passed.
	if !skipGoldenPath {
		if corePassed, coreRan := result.PhaseResults[dependency.Phase1Core]; coreRan && corePassed {
			c.setState(result, StateGoldenPath)
			c.runGoldenPath(ctx, result, plan.Services(), app)
		} else {
			result.Warnings = append(result.Warnings,
				"golden path skipped: core was not validated in this run")
		}
	}

	c.setState(result, StateDone)
	return result, nil
}

// validatePhase probes every member of one phase concurrently. Results come
// back in the plan's member order regardless of completion order. A panic in
// any single probe is contained to that service's result.
func (c *Checker) validatePhase(ctx context.Context, phase dependency.Phase, plan *dependency.Plan, failed map[dependency.ServiceType]bool, app health.AppState) []ServiceValidationResult {
	members := plan.Members[phase]
	results := make([]ServiceValidationResult, len(members))

	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range members {
		g.Go(func() error {
			results[i] = c.validateService(gctx, svc, phase, plan, failed, app)
			return nil
		})
	}
	// Workers never return errors; panics are recovered inside each worker.
	_ = g.Wait()
	return results
}

func (c *Checker) validateService(ctx context.Context, svc dependency.ServiceType, phase dependency.Phase, plan *dependency.Plan, failed map[dependency.ServiceType]bool, app health.AppState) (out ServiceValidationResult) {
	out = ServiceValidationResult{Service: svc, Phase: phase}
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Orchestrator", nil, "probe for %s panicked: %v", svc, r)
			out.Healthy = false
			out.Result = &health.HealthCheckResult{
				Status:       health.StatusUnknownError,
				ErrorMessage: fmt.Sprintf("internal error probing %s: %v", svc, r),
			}
		}
	}()

	for _, dep := range plan.Dependencies[svc] {
		if failed[dep] {
			out.DependencyFailures = append(out.DependencyFailures, dep)
		}
	}
	for _, dep := range plan.Excluded[svc] {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("%s depends on %s, which was excluded from this run", svc, dep))
	}

	client, err := health.NewServiceHealthClient(c.envSvc)
	if err != nil {
		out.Result = &health.HealthCheckResult{
			Status:       health.StatusUnknownError,
			ErrorMessage: fmt.Sprintf("creating health client: %v", err),
		}
		return out
	}
	defer client.Close()

	out.Result = c.retry.ExecuteWithRetry(ctx, func(ctx context.Context) *health.HealthCheckResult {
		return client.Check(ctx, app, svc)
	}, svc, "health check")
	out.Healthy = out.Result.Success
	return out
}

// runGoldenPath folds golden-path validation into the run result, scoped to
// the services this run actually validated. Low detection confidence and
// requirement failures both fail the run; the business impact of each
// critical failure is surfaced alongside.
func (c *Checker) runGoldenPath(ctx context.Context, result *DependencyValidationResult, services []dependency.ServiceType, app health.AppState) {
	gp, err := c.golden.Validate(ctx, app, services)
	if err != nil {
		result.OverallSuccess = false
		var lce *goldenpath.LowConfidenceError
		if errors.As(err, &lce) {
			result.Errors = append(result.Errors, "golden path: "+lce.Error())
			return
		}
		result.Errors = append(result.Errors, fmt.Sprintf("golden path: %v", err))
		return
	}
	result.GoldenPath = gp
	if gp.OverallSuccess {
		return
	}
	result.OverallSuccess = false
	for _, f := range gp.CriticalFailures {
		result.Errors = append(result.Errors, "golden path: "+f)
	}
	for _, impact := range gp.BusinessImpactFailures {
		result.Errors = append(result.Errors, "business impact: "+impact)
	}
}

// ValidateSingleServiceDependency validates one service with full retry
// semantics but no phase ordering and no golden path.
func (c *Checker) ValidateSingleServiceDependency(ctx context.Context, svc dependency.ServiceType, app health.AppState) (*ServiceValidationResult, error) {
	if !c.envSvc.Initialized() {
		if err := c.envSvc.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("initializing environment context: %w", err)
		}
	}
	plan, err := c.resolver.ResolveStartupOrder([]dependency.ServiceType{svc})
	if err != nil {
		return nil, err
	}
	var phase dependency.Phase
	for _, p := range plan.Phases {
		for _, member := range plan.Members[p] {
			if member == svc {
				phase = p
			}
		}
	}
	out := c.validateService(ctx, svc, phase, plan, nil, app)
	return &out, nil
}

// ServiceStatusSummary takes a single-attempt snapshot of every planned
// service. No retries, no halting, no golden path: this backs the status
// command, which favors speed over certainty.
func (c *Checker) ServiceStatusSummary(ctx context.Context, subset []dependency.ServiceType, app health.AppState) (*StatusSummary, error) {
	if !c.envSvc.Initialized() {
		if err := c.envSvc.Initialize(ctx); err != nil {
			return nil, fmt.Errorf("initializing environment context: %w", err)
		}
	}
	envCtx, err := c.envSvc.Context()
	if err != nil {
		return nil, err
	}
	plan, err := c.resolver.ResolveStartupOrder(subset)
	if err != nil {
		return nil, err
	}

	services := plan.Services()
	summary := &StatusSummary{
		Environment: string(envCtx.Environment),
		Confidence:  envCtx.ConfidenceScore,
		Services:    make([]ServiceStatus, len(services)),
		TakenAt:     time.Now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range services {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					summary.Services[i] = ServiceStatus{
						Service: svc,
						Result: &health.HealthCheckResult{
							Status:       health.StatusUnknownError,
							ErrorMessage: fmt.Sprintf("internal error probing %s: %v", svc, r),
						},
					}
					err = nil
				}
			}()
			client, cerr := health.NewServiceHealthClient(c.envSvc)
			if cerr != nil {
				return cerr
			}
			defer client.Close()
			res := client.Check(gctx, app, svc)
			summary.Services[i] = ServiceStatus{Service: svc, Healthy: res.Success, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range summary.Services {
		for _, p := range plan.Phases {
			for _, member := range plan.Members[p] {
				if member == summary.Services[i].Service {
					summary.Services[i].Phase = p
				}
			}
		}
	}
	return summary, nil
}
