package environment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readycheck/internal/dependency"
)

func newInitializedService(t *testing.T, env map[string]string, overrides map[Type]map[dependency.ServiceType]ServiceConfiguration) *ContextService {
	t.Helper()
	svc := NewContextServiceWithOverrides(newTestDetector(nil, env), overrides)
	require.NoError(t, svc.Initialize(context.Background()))
	return svc
}

func TestContextBeforeInitializeFails(t *testing.T) {
	svc := NewContextService(newTestDetector(nil, nil))

	_, err := svc.Context()
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = svc.ServiceConfiguration(dependency.ServiceAuth)
	require.ErrorIs(t, err, ErrNotInitialized)

	assert.False(t, svc.Initialized())
}

func TestInitializeIsIdempotent(t *testing.T) {
	svc := NewContextService(newTestDetector(nil, nil))

	require.NoError(t, svc.Initialize(context.Background()))
	first, err := svc.Context()
	require.NoError(t, err)

	require.NoError(t, svc.Initialize(context.Background()))
	second, err := svc.Context()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.True(t, svc.Initialized())
}

func TestLocalServiceConfigurationDefaults(t *testing.T) {
	svc := newInitializedService(t, nil, nil) // no signals -> development

	cfg, err := svc.ServiceConfiguration(dependency.ServiceAuth)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)

	cfg, err = svc.ServiceConfiguration(dependency.ServiceSession)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8082", cfg.BaseURL)

	cfg, err = svc.ServiceConfiguration(dependency.ServiceBackend)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8083", cfg.BaseURL)

	// Core is probed in-process: no URL.
	cfg, err = svc.ServiceConfiguration(dependency.ServiceCore)
	require.NoError(t, err)
	assert.Empty(t, cfg.BaseURL)
}

func TestRemoteServiceConfigurationDefaults(t *testing.T) {
	tests := []struct {
		env     string
		short   string
		timeout time.Duration
		retries int
	}{
		{"staging", "staging", 5 * time.Second, 2},
		{"production", "prod", 5 * time.Second, 2},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			svc := newInitializedService(t, map[string]string{"READYCHECK_ENVIRONMENT": tt.env}, nil)

			for _, s := range []dependency.ServiceType{dependency.ServiceAuth, dependency.ServiceSession, dependency.ServiceBackend} {
				cfg, err := svc.ServiceConfiguration(s)
				require.NoError(t, err)
				assert.Equal(t, "https://"+string(s)+"-"+tt.short+".run.app", cfg.BaseURL)
				assert.Equal(t, tt.timeout, cfg.Timeout)
				assert.Equal(t, tt.retries, cfg.MaxRetries)
			}
		})
	}
}

func TestServiceConfigurationOverrides(t *testing.T) {
	overrides := map[Type]map[dependency.ServiceType]ServiceConfiguration{
		Development: {
			dependency.ServiceAuth: {
				BaseURL:    "http://localhost:9181",
				Timeout:    3 * time.Second,
				MaxRetries: 1,
			},
		},
	}
	svc := newInitializedService(t, nil, overrides)

	cfg, err := svc.ServiceConfiguration(dependency.ServiceAuth)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9181", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxRetries)

	// Other services keep their defaults.
	cfg, err = svc.ServiceConfiguration(dependency.ServiceSession)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8082", cfg.BaseURL)
}

func TestRemoteEnvironmentRejectsLoopbackOverride(t *testing.T) {
	for _, env := range []string{"staging", "production"} {
		t.Run(env, func(t *testing.T) {
			envType, _ := ParseType(env)
			overrides := map[Type]map[dependency.ServiceType]ServiceConfiguration{
				envType: {
					dependency.ServiceBackend: {BaseURL: "http://localhost:8083"},
				},
			}
			svc := newInitializedService(t, map[string]string{"READYCHECK_ENVIRONMENT": env}, overrides)

			_, err := svc.ServiceConfiguration(dependency.ServiceBackend)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "loopback")
		})
	}
}

func TestCheckRemoteBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		env     Type
		url     string
		wantErr bool
	}{
		{"localhost allowed locally", Development, "http://localhost:8081", false},
		{"localhost rejected in staging", Staging, "http://localhost:8081", true},
		{"127.0.0.1 rejected in production", Production, "http://127.0.0.1:8081", true},
		{"127.x.x.x rejected in production", Production, "http://127.9.9.9", true},
		{"ipv6 loopback rejected in staging", Staging, "http://[::1]:8081", true},
		{"real host allowed in production", Production, "https://auth-prod.run.app", false},
		{"empty URL allowed", Production, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckRemoteBaseURL(tt.env, tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
