package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"readycheck/internal/dependency"
	"readycheck/internal/environment"
	"readycheck/pkg/logging"
)

// RetryPolicy fixes the backoff constants. Defaults are explicit and
// configurable rather than hidden behavior.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          float64
}

// DefaultRetryPolicy returns the standard exponential backoff constants:
// 250ms initial, doubling, +-20% jitter, capped at 5s per wait.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

// Operation is a single health-probe attempt.
type Operation func(ctx context.Context) *HealthCheckResult

// RetryMechanism executes health-probe operations with bounded retries and
// exponential backoff, honoring each service's timeout and retry budget.
type RetryMechanism struct {
	envSvc *environment.ContextService
	policy RetryPolicy
}

// NewRetryMechanism creates a retry wrapper using the default policy.
func NewRetryMechanism(envSvc *environment.ContextService) *RetryMechanism {
	return NewRetryMechanismWithPolicy(envSvc, DefaultRetryPolicy())
}

// NewRetryMechanismWithPolicy creates a retry wrapper with explicit backoff
// constants.
func NewRetryMechanismWithPolicy(envSvc *environment.ContextService, policy RetryPolicy) *RetryMechanism {
	def := DefaultRetryPolicy()
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = def.InitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = def.MaxInterval
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = def.Multiplier
	}
	if policy.Jitter < 0 || policy.Jitter > 1 {
		policy.Jitter = def.Jitter
	}
	return &RetryMechanism{envSvc: envSvc, policy: policy}
}

// ExecuteWithRetry runs op, retrying retryable failures up to the service's
// MaxRetries with exponential backoff. The total elapsed time is bounded at
// roughly twice the service's configured timeout. Non-retryable failures
// return immediately. The returned result always carries the true number of
// retries performed.
func (m *RetryMechanism) ExecuteWithRetry(ctx context.Context, op Operation, svc dependency.ServiceType, opName string) *HealthCheckResult {
	cfg, err := m.envSvc.ServiceConfiguration(svc)
	if err != nil {
		// Malformed configuration is not retryable.
		return &HealthCheckResult{
			Status:       StatusUnknownError,
			ErrorMessage: fmt.Sprintf("%s for %s aborted: %v", opName, svc, err),
		}
	}

	budget := 2 * cfg.Timeout
	deadline := time.Now().Add(budget)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.policy.InitialInterval
	bo.MaxInterval = m.policy.MaxInterval
	bo.Multiplier = m.policy.Multiplier
	bo.RandomizationFactor = m.policy.Jitter
	bo.MaxElapsedTime = budget
	bo.Reset()

	var res *HealthCheckResult
	for attempt := 0; ; attempt++ {
		res = op(ctx)
		if res == nil {
			res = &HealthCheckResult{
				Status:       StatusUnknownError,
				ErrorMessage: fmt.Sprintf("%s for %s returned no result", opName, svc),
			}
		}
		res.RetryCount = attempt

		if res.Success || !res.Status.Retryable() {
			return res
		}
		if attempt >= cfg.MaxRetries {
			logging.Debug("RetryMechanism", "%s for %s failed after %d attempts (%s)",
				opName, svc, attempt+1, res.Status)
			return res
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop || time.Now().Add(wait).After(deadline) {
			logging.Debug("RetryMechanism", "%s for %s exhausted its %v time budget after %d attempts",
				opName, svc, budget, attempt+1)
			return res
		}

		logging.Debug("RetryMechanism", "%s for %s failed (%s), retrying in %v (attempt %d/%d)",
			opName, svc, res.Status, wait, attempt+1, cfg.MaxRetries+1)

		select {
		case <-ctx.Done():
			res.ErrorMessage = fmt.Sprintf("%s for %s canceled: %v", opName, svc, ctx.Err())
			return res
		case <-time.After(wait):
		}
	}
}
