// Package goldenpath validates the critical user journey end to end.
// Individual service health says a process is up; the golden path checks
// that the journey a real user takes through those services still works.
package goldenpath

import (
	"context"
	"fmt"
	"time"

	"readycheck/internal/dependency"
	"readycheck/internal/environment"
	"readycheck/internal/health"
	"readycheck/pkg/logging"
)

// ConfidenceThreshold is the minimum environment-detection confidence
// required before golden-path results are trusted. Below it, a passing
// validation could be validating the wrong environment entirely.
const ConfidenceThreshold = 0.70

// LowConfidenceError reports that environment detection was too uncertain
// for golden-path results to be meaningful.
type LowConfidenceError struct {
	Confidence float64
	Threshold  float64
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("environment detection confidence %.2f is below the %.2f required for golden path validation",
		e.Confidence, e.Threshold)
}

// CheckFunc performs one requirement check against a live service.
type CheckFunc func(ctx context.Context, client *health.ServiceHealthClient, app health.AppState) (string, error)

// Requirement is one step of the golden path. Critical requirements carry a
// BusinessImpact statement describing what users lose when the step fails.
type Requirement struct {
	Name           string
	Service        dependency.ServiceType
	Critical       bool
	BusinessImpact string
	Check          CheckFunc `json:"-"`
}

// RequirementResult is the outcome of a single requirement check.
type RequirementResult struct {
	Requirement Requirement
	Success     bool
	Message     string
	Duration    time.Duration
}

// Result aggregates a full golden-path run.
type Result struct {
	OverallSuccess         bool
	RequirementsPassed     int
	RequirementsTotal      int
	CriticalFailures       []string
	BusinessImpactFailures []string
	RequirementResults     []RequirementResult
}

// Validator runs golden-path requirements against the detected environment.
type Validator struct {
	envSvc       *environment.ContextService
	requirements []Requirement
}

// NewValidator creates a validator with the default requirement set.
func NewValidator(envSvc *environment.ContextService) *Validator {
	return &Validator{envSvc: envSvc, requirements: DefaultRequirements()}
}

// NewValidatorWithRequirements creates a validator with a custom requirement
// set, used by tests and by deployments with extra journey steps.
func NewValidatorWithRequirements(envSvc *environment.ContextService, reqs []Requirement) *Validator {
	return &Validator{envSvc: envSvc, requirements: reqs}
}

// DefaultRequirements returns the built-in golden path: sign-in, session
// persistence, and the backend query path. All three are critical.
func DefaultRequirements() []Requirement {
	return []Requirement{
		{
			Name:           "auth_login_flow",
			Service:        dependency.ServiceAuth,
			Critical:       true,
			BusinessImpact: "Users cannot sign in",
			Check:          healthProbe(dependency.ServiceAuth),
		},
		{
			Name:           "session_persistence",
			Service:        dependency.ServiceSession,
			Critical:       true,
			BusinessImpact: "Active user sessions are lost",
			Check:          healthProbe(dependency.ServiceSession),
		},
		{
			Name:           "backend_query_path",
			Service:        dependency.ServiceBackend,
			Critical:       true,
			BusinessImpact: "Core data operations are unavailable",
			Check:          healthProbe(dependency.ServiceBackend),
		},
	}
}

func healthProbe(svc dependency.ServiceType) CheckFunc {
	return func(ctx context.Context, client *health.ServiceHealthClient, app health.AppState) (string, error) {
		res := client.Check(ctx, app, svc)
		if !res.Success {
			return "", fmt.Errorf("%s reported %s: %s", svc, res.Status, res.ErrorMessage)
		}
		return fmt.Sprintf("%s responded in %v", svc, res.ResponseTime), nil
	}
}

// Validate runs every in-scope requirement in order and aggregates the
// outcome. An empty services slice puts all requirements in scope; otherwise
// requirements whose service is not listed are skipped rather than failed.
// It refuses to run when environment detection confidence is below
// ConfidenceThreshold, returning a LowConfidenceError instead of a result
// that could not be trusted.
func (v *Validator) Validate(ctx context.Context, app health.AppState, services []dependency.ServiceType) (*Result, error) {
	envCtx, err := v.envSvc.Context()
	if err != nil {
		return nil, fmt.Errorf("golden path validation requires an initialized environment context: %w", err)
	}
	if envCtx.ConfidenceScore < ConfidenceThreshold {
		return nil, &LowConfidenceError{Confidence: envCtx.ConfidenceScore, Threshold: ConfidenceThreshold}
	}

	scoped := v.scopedRequirements(services)
	if len(scoped) == 0 {
		logging.Info("GoldenPath", "no requirements in scope for this run")
		return &Result{OverallSuccess: true}, nil
	}

	client, err := health.NewServiceHealthClient(v.envSvc)
	if err != nil {
		return nil, fmt.Errorf("creating health client for golden path: %w", err)
	}
	defer client.Close()

	result := &Result{
		OverallSuccess:    true,
		RequirementsTotal: len(scoped),
	}

	for _, req := range scoped {
		start := time.Now()
		msg, checkErr := req.Check(ctx, client, app)
		rr := RequirementResult{
			Requirement: req,
			Success:     checkErr == nil,
			Message:     msg,
			Duration:    time.Since(start),
		}
		if checkErr != nil {
			rr.Message = checkErr.Error()
			result.OverallSuccess = false
			if req.Critical {
				result.CriticalFailures = append(result.CriticalFailures,
					fmt.Sprintf("%s: %v", req.Name, checkErr))
				if req.BusinessImpact != "" {
					result.BusinessImpactFailures = append(result.BusinessImpactFailures, req.BusinessImpact)
				}
			}
			logging.Warn("GoldenPath", "requirement %s failed: %v", req.Name, checkErr)
		} else {
			result.RequirementsPassed++
			logging.Debug("GoldenPath", "requirement %s passed in %v", req.Name, rr.Duration)
		}
		result.RequirementResults = append(result.RequirementResults, rr)
	}

	return result, nil
}

// scopedRequirements filters the requirement set to services in scope. An
// empty scope means everything.
func (v *Validator) scopedRequirements(services []dependency.ServiceType) []Requirement {
	if len(services) == 0 {
		return v.requirements
	}
	inScope := make(map[dependency.ServiceType]bool, len(services))
	for _, svc := range services {
		inScope[svc] = true
	}
	scoped := make([]Requirement, 0, len(v.requirements))
	for _, req := range v.requirements {
		if inScope[req.Service] {
			scoped = append(scoped, req)
		}
	}
	return scoped
}
