package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readycheck/internal/dependency"
	"readycheck/internal/environment"
	"readycheck/internal/goldenpath"
	"readycheck/internal/health"
	"readycheck/internal/metrics"
)

type unreachableMetadata struct{}

func (unreachableMetadata) GetWithContext(ctx context.Context, suffix string) (string, error) {
	return "", errors.New("metadata server unreachable")
}

// serviceServer answers /health/{service} with a configurable status per
// service, defaulting to 200. A service can also be set to fail a fixed
// number of requests before recovering.
type serviceServer struct {
	mu       sync.Mutex
	statuses map[string]int
	failures map[string]int
	server   *httptest.Server
}

func newServiceServer(t *testing.T) *serviceServer {
	s := &serviceServer{statuses: make(map[string]int), failures: make(map[string]int)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc := strings.TrimPrefix(r.URL.Path, "/health/")
		s.mu.Lock()
		status, ok := s.statuses[svc]
		if s.failures[svc] > 0 {
			s.failures[svc]--
			status, ok = http.StatusServiceUnavailable, true
		}
		s.mu.Unlock()
		if !ok {
			status = http.StatusOK
		}
		if status != http.StatusOK {
			http.Error(w, "unhealthy", status)
			return
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *serviceServer) setStatus(svc dependency.ServiceType, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[string(svc)] = status
}

func (s *serviceServer) failFirst(svc dependency.ServiceType, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[string(svc)] = n
}

// newTestChecker wires a checker against the test server with negligible
// backoff waits. explicitEnv selects the explicit override variable value;
// empty means detection falls back to development at low confidence.
func newTestChecker(t *testing.T, srv *serviceServer, explicitEnv string, events chan Event) *Checker {
	t.Helper()

	env := map[string]string{}
	if explicitEnv != "" {
		env["READYCHECK_ENVIRONMENT"] = explicitEnv
	}

	overrides := map[environment.Type]map[dependency.ServiceType]environment.ServiceConfiguration{
		environment.Development: {
			dependency.ServiceCore:    {Timeout: 500 * time.Millisecond},
			dependency.ServiceAuth:    {BaseURL: srv.server.URL, Timeout: 500 * time.Millisecond, MaxRetries: 1},
			dependency.ServiceSession: {BaseURL: srv.server.URL, Timeout: 500 * time.Millisecond, MaxRetries: 1},
			dependency.ServiceBackend: {BaseURL: srv.server.URL, Timeout: 500 * time.Millisecond, MaxRetries: 1},
		},
	}
	envSvc := environment.NewContextServiceWithOverrides(environment.NewDetector(environment.DetectorOptions{
		ProbeTimeout: 10 * time.Millisecond,
		Metadata:     unreachableMetadata{},
		Getenv:       func(name string) string { return env[name] },
	}), overrides)

	return NewChecker(CheckerOptions{
		EnvService: envSvc,
		Retry: health.NewRetryMechanismWithPolicy(envSvc, health.RetryPolicy{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2.0,
			Jitter:          0,
		}),
		Recorder: metrics.NewRecorder(),
		Events:   events,
	})
}

func readyApp() health.AppStateFunc {
	return func(ctx context.Context) error { return nil }
}

func TestValidateAllPhasesHealthy(t *testing.T) {
	srv := newServiceServer(t)
	checker := newTestChecker(t, srv, "development", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(), nil, false, readyApp())
	require.NoError(t, err)

	assert.True(t, result.OverallSuccess)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, "development", result.Environment)
	assert.Equal(t, []dependency.Phase{dependency.Phase1Core, dependency.Phase2Auth, dependency.Phase3Backend}, result.PhasesValidated)
	assert.Len(t, result.ServiceResults, 4)
	assert.Empty(t, result.FailedServices())
	assert.Empty(t, result.Errors)

	assert.Equal(t, map[dependency.Phase]bool{
		dependency.Phase1Core:    true,
		dependency.Phase2Auth:    true,
		dependency.Phase3Backend: true,
	}, result.PhaseResults)
	assert.Equal(t, 4, result.TotalServicesChecked)
	assert.Equal(t, 4, result.ServicesHealthy)
	assert.Zero(t, result.ServicesDegraded)
	assert.Zero(t, result.ServicesFailed)

	require.NotNil(t, result.GoldenPath)
	assert.True(t, result.GoldenPath.OverallSuccess)
	assert.Equal(t, 3, result.GoldenPath.RequirementsPassed)
}

func TestValidateHaltsWhenCoreFails(t *testing.T) {
	srv := newServiceServer(t)
	checker := newTestChecker(t, srv, "development", nil)

	app := health.AppStateFunc(func(ctx context.Context) error {
		return errors.New("schema migration pending")
	})
	result, err := checker.ValidateServiceDependencies(context.Background(), nil, false, app)
	require.NoError(t, err)

	assert.False(t, result.OverallSuccess)
	assert.Equal(t, StateHalted, result.State)
	assert.Equal(t, dependency.Phase1Core, result.HaltedAt)

	// Only phase 1 ran; no HTTP services were probed and no golden path.
	require.Len(t, result.ServiceResults, 1)
	assert.Equal(t, dependency.ServiceCore, result.ServiceResults[0].Service)
	assert.Equal(t, []dependency.Phase{dependency.Phase1Core}, result.PhasesValidated)
	assert.Equal(t, map[dependency.Phase]bool{dependency.Phase1Core: false}, result.PhaseResults)
	assert.Equal(t, 1, result.TotalServicesChecked)
	assert.Equal(t, 1, result.ServicesFailed)
	assert.Nil(t, result.GoldenPath)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "phase-1-core")
}

func TestValidateHaltsOnAuthPhaseFailure(t *testing.T) {
	srv := newServiceServer(t)
	srv.setStatus(dependency.ServiceAuth, http.StatusServiceUnavailable)
	checker := newTestChecker(t, srv, "development", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(), nil, false, readyApp())
	require.NoError(t, err)

	assert.False(t, result.OverallSuccess)
	assert.Equal(t, StateHalted, result.State)
	assert.Equal(t, dependency.Phase2Auth, result.HaltedAt)

	// Session shares auth's phase and is still probed; backend is not.
	probed := make(map[dependency.ServiceType]bool)
	for _, sr := range result.ServiceResults {
		probed[sr.Service] = true
	}
	assert.True(t, probed[dependency.ServiceCore])
	assert.True(t, probed[dependency.ServiceAuth])
	assert.True(t, probed[dependency.ServiceSession])
	assert.False(t, probed[dependency.ServiceBackend])

	assert.Equal(t, []dependency.ServiceType{dependency.ServiceAuth}, result.FailedServices())
	assert.Nil(t, result.GoldenPath)

	// The halted phase reads false; the never-run phase is absent entirely.
	assert.Equal(t, map[dependency.Phase]bool{
		dependency.Phase1Core: true,
		dependency.Phase2Auth: false,
	}, result.PhaseResults)
	assert.Equal(t, 3, result.TotalServicesChecked)
	assert.Equal(t, 2, result.ServicesHealthy)
	assert.Equal(t, 1, result.ServicesFailed)
}

func TestValidateNonCriticalPhaseFailureDegrades(t *testing.T) {
	srv := newServiceServer(t)
	srv.setStatus(dependency.ServiceBackend, http.StatusServiceUnavailable)
	checker := newTestChecker(t, srv, "development", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(), nil, true, readyApp())
	require.NoError(t, err)

	// A backend failure degrades but does not halt or fail the phased run.
	assert.True(t, result.OverallSuccess)
	assert.Equal(t, StateDone, result.State)
	assert.Zero(t, result.HaltedAt)
	assert.Equal(t, []dependency.ServiceType{dependency.ServiceBackend}, result.FailedServices())
	assert.Len(t, result.ServiceResults, 4)

	assert.True(t, result.PhaseResults[dependency.Phase2Auth])
	assert.False(t, result.PhaseResults[dependency.Phase3Backend])
	assert.Equal(t, 4, result.TotalServicesChecked)
	assert.Equal(t, 3, result.ServicesHealthy)
	assert.Equal(t, 1, result.ServicesFailed)

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "degraded") {
			found = true
		}
	}
	assert.True(t, found, "expected a degraded-mode warning, got %v", result.Warnings)
}

func TestValidateRetriesUnhealthyServices(t *testing.T) {
	srv := newServiceServer(t)
	srv.setStatus(dependency.ServiceSession, http.StatusServiceUnavailable)
	checker := newTestChecker(t, srv, "development", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(), nil, true, readyApp())
	require.NoError(t, err)

	for _, sr := range result.ServiceResults {
		if sr.Service == dependency.ServiceSession {
			assert.False(t, sr.Healthy)
			assert.Equal(t, 1, sr.Result.RetryCount, "session override grants one retry")
		}
	}
}

func TestValidateGoldenPathLowConfidenceFailsRun(t *testing.T) {
	srv := newServiceServer(t)
	// No explicit variable: development fallback at confidence 0.30.
	checker := newTestChecker(t, srv, "", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(), nil, false, readyApp())
	require.NoError(t, err)

	assert.False(t, result.OverallSuccess)
	assert.Equal(t, StateDone, result.State)
	assert.Nil(t, result.GoldenPath)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "golden path:")
	assert.Contains(t, result.Errors[0], "confidence")
}

func TestValidateGoldenPathFailureSurfacesBusinessImpact(t *testing.T) {
	srv := newServiceServer(t)
	checker := newTestChecker(t, srv, "development", nil)
	checker.golden = goldenpath.NewValidatorWithRequirements(checker.envSvc, []goldenpath.Requirement{
		{
			Name:           "auth_login_flow",
			Service:        dependency.ServiceAuth,
			Critical:       true,
			BusinessImpact: "Users cannot sign in",
			Check: func(ctx context.Context, client *health.ServiceHealthClient, app health.AppState) (string, error) {
				return "", errors.New("login handshake rejected")
			},
		},
	})

	result, err := checker.ValidateServiceDependencies(context.Background(), nil, false, readyApp())
	require.NoError(t, err)

	assert.False(t, result.OverallSuccess)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, strings.Join(result.Errors, "\n"), "golden path: auth_login_flow")
	assert.Contains(t, strings.Join(result.Errors, "\n"), "business impact: Users cannot sign in")
}

func TestValidateRecoversFromPanics(t *testing.T) {
	srv := newServiceServer(t)
	checker := newTestChecker(t, srv, "development", nil)
	checker.golden = goldenpath.NewValidatorWithRequirements(checker.envSvc, []goldenpath.Requirement{
		{
			Name:    "exploding_requirement",
			Service: dependency.ServiceAuth,
			Check: func(ctx context.Context, client *health.ServiceHealthClient, app health.AppState) (string, error) {
				panic("boom")
			},
		},
	})

	result, err := checker.ValidateServiceDependencies(context.Background(), nil, false, readyApp())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.OverallSuccess)
	assert.Equal(t, StateHalted, result.State)
	assert.Contains(t, strings.Join(result.Errors, "\n"), "internal error")
}

func TestValidateSubsetWarnsAboutExcludedDependencies(t *testing.T) {
	srv := newServiceServer(t)
	checker := newTestChecker(t, srv, "development", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(),
		[]dependency.ServiceType{dependency.ServiceCore, dependency.ServiceBackend}, true, readyApp())
	require.NoError(t, err)

	assert.True(t, result.OverallSuccess)
	assert.Len(t, result.ServiceResults, 2)
	assert.Contains(t, strings.Join(result.Warnings, "\n"), "excluded")
}

func TestValidateGoldenPathScopedToSubset(t *testing.T) {
	srv := newServiceServer(t)
	// Session and backend are down, but this run does not include them, so
	// their golden-path requirements must not be probed either.
	srv.setStatus(dependency.ServiceSession, http.StatusInternalServerError)
	srv.setStatus(dependency.ServiceBackend, http.StatusInternalServerError)
	checker := newTestChecker(t, srv, "development", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(),
		[]dependency.ServiceType{dependency.ServiceCore, dependency.ServiceAuth}, false, readyApp())
	require.NoError(t, err)

	assert.True(t, result.OverallSuccess)
	assert.Equal(t, StateDone, result.State)
	assert.Empty(t, result.Errors)
	assert.Len(t, result.ServiceResults, 2)

	require.NotNil(t, result.GoldenPath)
	assert.True(t, result.GoldenPath.OverallSuccess)
	assert.Equal(t, 1, result.GoldenPath.RequirementsTotal)
	assert.Equal(t, 1, result.GoldenPath.RequirementsPassed)
	require.Len(t, result.GoldenPath.RequirementResults, 1)
	assert.Equal(t, "auth_login_flow", result.GoldenPath.RequirementResults[0].Requirement.Name)
}

func TestValidateGoldenPathSkippedWithoutCore(t *testing.T) {
	srv := newServiceServer(t)
	checker := newTestChecker(t, srv, "development", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(),
		[]dependency.ServiceType{dependency.ServiceAuth}, false, readyApp())
	require.NoError(t, err)

	assert.True(t, result.OverallSuccess)
	assert.Equal(t, StateDone, result.State)
	assert.Nil(t, result.GoldenPath)
	assert.Contains(t, strings.Join(result.Warnings, "\n"), "golden path skipped")
}

func TestValidateCountsDegradedServices(t *testing.T) {
	srv := newServiceServer(t)
	srv.failFirst(dependency.ServiceSession, 1)
	checker := newTestChecker(t, srv, "development", nil)

	result, err := checker.ValidateServiceDependencies(context.Background(), nil, true, readyApp())
	require.NoError(t, err)

	// Session recovered on its retry: the run passes, but the service counts
	// as degraded rather than healthy.
	assert.True(t, result.OverallSuccess)
	assert.Empty(t, result.FailedServices())
	assert.Equal(t, 4, result.TotalServicesChecked)
	assert.Equal(t, 3, result.ServicesHealthy)
	assert.Equal(t, 1, result.ServicesDegraded)
	assert.Zero(t, result.ServicesFailed)
}

func TestValidateInvalidSubsetFailsFast(t *testing.T) {
	srv := newServiceServer(t)
	checker := newTestChecker(t, srv, "development", nil)

	_, err := checker.ValidateServiceDependencies(context.Background(),
		[]dependency.ServiceType{"database"}, true, readyApp())
	require.Error(t, err)

	var cfgErr *dependency.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestValidateEmitsEvents(t *testing.T) {
	srv := newServiceServer(t)
	events := make(chan Event, 128)
	checker := newTestChecker(t, srv, "development", events)

	_, err := checker.ValidateServiceDependencies(context.Background(), nil, true, readyApp())
	require.NoError(t, err)
	close(events)

	var types []EventType
	var serviceResults int
	for ev := range events {
		types = append(types, ev.Type)
		if ev.Type == EventServiceResult {
			serviceResults++
		}
	}
	assert.Contains(t, types, EventStateChanged)
	assert.Contains(t, types, EventPhaseStarted)
	assert.Contains(t, types, EventPhaseFinished)
	assert.Equal(t, 4, serviceResults)
}

func TestValidateSingleServiceDependency(t *testing.T) {
	srv := newServiceServer(t)
	checker := newTestChecker(t, srv, "development", nil)

	sr, err := checker.ValidateSingleServiceDependency(context.Background(), dependency.ServiceAuth, readyApp())
	require.NoError(t, err)

	assert.True(t, sr.Healthy)
	assert.Equal(t, dependency.ServiceAuth, sr.Service)
	assert.Equal(t, dependency.Phase2Auth, sr.Phase)
}

func TestServiceStatusSummary(t *testing.T) {
	srv := newServiceServer(t)
	srv.setStatus(dependency.ServiceBackend, http.StatusServiceUnavailable)
	checker := newTestChecker(t, srv, "development", nil)

	summary, err := checker.ServiceStatusSummary(context.Background(), nil, readyApp())
	require.NoError(t, err)

	assert.Equal(t, "development", summary.Environment)
	require.Len(t, summary.Services, 4)

	byService := make(map[dependency.ServiceType]ServiceStatus)
	for _, st := range summary.Services {
		byService[st.Service] = st
	}
	assert.True(t, byService[dependency.ServiceCore].Healthy)
	assert.True(t, byService[dependency.ServiceAuth].Healthy)
	assert.False(t, byService[dependency.ServiceBackend].Healthy)
	assert.Equal(t, dependency.Phase3Backend, byService[dependency.ServiceBackend].Phase)

	// Snapshots take exactly one attempt per service.
	assert.Equal(t, 0, byService[dependency.ServiceBackend].Result.RetryCount)
}
