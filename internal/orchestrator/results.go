package orchestrator

import (
	"time"

	"readycheck/internal/dependency"
	"readycheck/internal/goldenpath"
	"readycheck/internal/health"
)

// State is the orchestrator's position in the validation lifecycle.
type State string

const (
	StateInit       State = "init"
	StateResolving  State = "resolving"
	StateValidating State = "validating"
	StateGoldenPath State = "golden-path"
	StateHalted     State = "halted"
	StateDone       State = "done"
)

// EventType classifies orchestrator events sent to observers.
type EventType string

const (
	EventStateChanged  EventType = "state-changed"
	EventPhaseStarted  EventType = "phase-started"
	EventPhaseFinished EventType = "phase-finished"
	EventServiceResult EventType = "service-result"
)

// Event is a progress notification emitted during a validation run. Events
// are advisory: slow or absent observers never block validation.
type Event struct {
	Type    EventType
	State   State
	Phase   dependency.Phase
	Service dependency.ServiceType
	Healthy bool
	Message string
	At      time.Time
}

// ServiceValidationResult is the outcome of validating one service,
// including the prerequisite context the health probe alone cannot see.
type ServiceValidationResult struct {
	Service dependency.ServiceType
	Phase   dependency.Phase
	Healthy bool
	Result  *health.HealthCheckResult

	// DependencyFailures names prerequisites of this service that failed in
	// an earlier phase. The probe still ran; these explain likely causes.
	DependencyFailures []dependency.ServiceType
	// Warnings carry non-fatal notes, such as declared prerequisites that
	// were excluded from the requested subset.
	Warnings []string
}

// DependencyValidationResult is the aggregate outcome of a full run.
type DependencyValidationResult struct {
	OverallSuccess bool
	State          State
	Environment    string
	Confidence     float64

	// HaltedAt is set when a critical-phase failure stopped validation
	// before later phases ran.
	HaltedAt dependency.Phase

	// PhaseResults maps each validated phase to whether every member passed.
	// Phases skipped after a critical halt never appear.
	PhaseResults map[dependency.Phase]bool

	// Counts over ServiceResults. A degraded service passed, but only after
	// one or more retries.
	TotalServicesChecked int
	ServicesHealthy      int
	ServicesDegraded     int
	ServicesFailed       int

	PhasesValidated []dependency.Phase
	ServiceResults  []ServiceValidationResult
	GoldenPath      *goldenpath.Result
	Errors          []string
	Warnings        []string

	StartedAt time.Time
	Duration  time.Duration
}

// FailedServices returns the services that did not validate, in result order.
func (r *DependencyValidationResult) FailedServices() []dependency.ServiceType {
	var out []dependency.ServiceType
	for _, sr := range r.ServiceResults {
		if !sr.Healthy {
			out = append(out, sr.Service)
		}
	}
	return out
}

// ServiceStatus is a single-attempt snapshot of one service, used by the
// lightweight status command rather than the full validation run.
type ServiceStatus struct {
	Service dependency.ServiceType
	Phase   dependency.Phase
	Healthy bool
	Result  *health.HealthCheckResult
}

// StatusSummary is a point-in-time view of every planned service with no
// retries and no golden path.
type StatusSummary struct {
	Environment string
	Confidence  float64
	Services    []ServiceStatus
	TakenAt     time.Time
}
