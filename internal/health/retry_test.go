package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readycheck/internal/dependency"
	"readycheck/internal/environment"
)

// fastPolicy keeps test backoff waits negligible.
func fastPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		Jitter:          0.1,
	}
}

func newTestEnvService(t *testing.T, env map[string]string) *environment.ContextService {
	t.Helper()
	svc := environment.NewContextService(environment.NewDetector(environment.DetectorOptions{
		ProbeTimeout: 10 * time.Millisecond,
		Metadata:     unreachableMetadata{},
		Getenv:       func(name string) string { return env[name] },
	}))
	require.NoError(t, svc.Initialize(context.Background()))
	return svc
}

func failingOp(status Status, calls *atomic.Int32) Operation {
	return func(ctx context.Context) *HealthCheckResult {
		calls.Add(1)
		return &HealthCheckResult{Status: status, ErrorMessage: "still down"}
	}
}

func TestExecuteWithRetryExhaustsBudget(t *testing.T) {
	// Development grants 3 retries: an always-failing retryable probe runs
	// MaxRetries+1 times and reports the true retry count.
	envSvc := newTestEnvService(t, nil)
	m := NewRetryMechanismWithPolicy(envSvc, fastPolicy())

	var calls atomic.Int32
	res := m.ExecuteWithRetry(context.Background(), failingOp(StatusNetworkError, &calls), dependency.ServiceAuth, "health check")

	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, 3, res.RetryCount)
	assert.False(t, res.Success)
	assert.Equal(t, StatusNetworkError, res.Status)
}

func TestExecuteWithRetryNonRetryableFailsFast(t *testing.T) {
	envSvc := newTestEnvService(t, nil)
	m := NewRetryMechanismWithPolicy(envSvc, fastPolicy())

	var calls atomic.Int32
	res := m.ExecuteWithRetry(context.Background(), failingOp(StatusUnknownError, &calls), dependency.ServiceAuth, "health check")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, res.RetryCount)
	assert.False(t, res.Success)
}

func TestExecuteWithRetrySucceedsWithoutRetry(t *testing.T) {
	envSvc := newTestEnvService(t, nil)
	m := NewRetryMechanismWithPolicy(envSvc, fastPolicy())

	var calls atomic.Int32
	res := m.ExecuteWithRetry(context.Background(), func(ctx context.Context) *HealthCheckResult {
		calls.Add(1)
		return &HealthCheckResult{Success: true, Status: StatusHealthy}
	}, dependency.ServiceAuth, "health check")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, res.RetryCount)
	assert.True(t, res.Success)
}

func TestExecuteWithRetryRecoversAfterTransientFailures(t *testing.T) {
	envSvc := newTestEnvService(t, nil)
	m := NewRetryMechanismWithPolicy(envSvc, fastPolicy())

	var calls atomic.Int32
	res := m.ExecuteWithRetry(context.Background(), func(ctx context.Context) *HealthCheckResult {
		if calls.Add(1) < 3 {
			return &HealthCheckResult{Status: StatusTimeout, ErrorMessage: "not yet"}
		}
		return &HealthCheckResult{Success: true, Status: StatusHealthy}
	}, dependency.ServiceAuth, "health check")

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, res.RetryCount)
	assert.True(t, res.Success)
}

func TestExecuteWithRetryHonorsCancellation(t *testing.T) {
	envSvc := newTestEnvService(t, nil)
	// Long waits so cancellation lands during the backoff sleep.
	m := NewRetryMechanismWithPolicy(envSvc, RetryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		Jitter:          0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := m.ExecuteWithRetry(ctx, failingOp(StatusNetworkError, &calls), dependency.ServiceAuth, "health check")

	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, res.Success)
	assert.Contains(t, res.ErrorMessage, "canceled")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecuteWithRetryUninitializedEnvironment(t *testing.T) {
	envSvc := environment.NewContextService(environment.NewDetector(environment.DetectorOptions{
		Metadata: unreachableMetadata{},
		Getenv:   func(string) string { return "" },
	}))

	var calls atomic.Int32
	m := NewRetryMechanismWithPolicy(envSvc, fastPolicy())
	res := m.ExecuteWithRetry(context.Background(), failingOp(StatusNetworkError, &calls), dependency.ServiceAuth, "health check")

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, StatusUnknownError, res.Status)
	assert.Contains(t, res.ErrorMessage, "aborted")
}

func TestStatusRetryable(t *testing.T) {
	assert.True(t, StatusTimeout.Retryable())
	assert.True(t, StatusNetworkError.Retryable())
	assert.True(t, StatusHTTPError.Retryable())
	assert.False(t, StatusUnknownError.Retryable())
	assert.False(t, StatusHealthy.Retryable())
}
