// Package orchestrator drives readycheck's full validation lifecycle.
//
// The orchestrator resolves the declared service dependency graph into phased
// startup order, probes every service's health with bounded retries, and
// finishes a successful run with golden-path validation of the critical user
// journey.
//
// # Validation Phases
//
// Services are validated in three phases:
//
//  1. Core (in-process application state — no dependencies)
//  2. Auth and session services (depend on core)
//  3. Backend services (depend on auth and core)
//
// Services within a phase are probed concurrently; phases run strictly in
// order. A failure in a critical phase (core or auth) halts the run before
// later phases execute, because their results would be meaningless noise. A
// failure in the backend phase degrades the run but does not halt it: the
// golden path decides whether the degradation matters to users.
//
// # State Machine
//
// A run moves through init -> resolving -> validating -> golden-path -> done,
// or stops at halted when a critical phase fails. Progress is published as
// Events for live observers such as the watch TUI; event delivery never
// blocks validation.
//
// # Failure Containment
//
// The orchestrator never lets a panic escape a validation run. Panics inside
// individual probes are contained to that service's result, and a recovery
// boundary around the whole run converts anything that slips through into a
// failed result.
//
// # Usage Example
//
//	checker := orchestrator.NewChecker(orchestrator.CheckerOptions{
//	    EnvService: envSvc,
//	})
//	result, err := checker.ValidateServiceDependencies(ctx, nil, false, app)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.OverallSuccess {
//	    // inspect result.Errors and result.ServiceResults
//	}
package orchestrator
