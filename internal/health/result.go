package health

import (
	"context"
	"time"
)

// Status classifies the outcome of a single health probe.
type Status string

const (
	StatusHealthy      Status = "healthy"
	StatusHTTPError    Status = "http_error"
	StatusTimeout      Status = "timeout"
	StatusNetworkError Status = "network_error"
	StatusUnknownError Status = "unknown_error"
)

// Retryable reports whether a probe outcome is worth retrying. Timeouts and
// connection failures are startup churn; a reachable service answering with
// an error status may still come up within the retry budget. Unknown errors
// (bad configuration, malformed requests) will not improve on retry.
func (s Status) Retryable() bool {
	switch s {
	case StatusTimeout, StatusNetworkError, StatusHTTPError:
		return true
	}
	return false
}

// HealthCheckResult is the structured outcome of one (possibly retried)
// health probe. Probes always return a result; they never panic past their
// boundary.
type HealthCheckResult struct {
	Success      bool
	Status       Status
	ResponseTime time.Duration
	ErrorMessage string
	RetryCount   int
	Details      map[string]string
}

// WithDetail records a key/value pair on the result and returns it.
func (r *HealthCheckResult) WithDetail(key, value string) *HealthCheckResult {
	if r.Details == nil {
		r.Details = make(map[string]string)
	}
	r.Details[key] = value
	return r
}

// AppState is the opaque application-state handle passed through to
// in-process health checks. The core service is validated against it
// instead of over HTTP.
type AppState interface {
	// Ready returns nil when the in-process application core is ready to
	// serve, and a describing error otherwise.
	Ready(ctx context.Context) error
}

// AppStateFunc adapts a plain function to the AppState interface.
type AppStateFunc func(ctx context.Context) error

// Ready implements AppState.
func (f AppStateFunc) Ready(ctx context.Context) error { return f(ctx) }
