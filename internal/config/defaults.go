package config

import (
	"time"

	"readycheck/internal/environment"
	"readycheck/internal/health"
)

// DefaultConfig returns the built-in configuration all layers merge onto.
func DefaultConfig() Config {
	policy := health.DefaultRetryPolicy()
	return Config{
		Environment: EnvironmentSettings{
			OverrideVar:  environment.DefaultEnvVarName,
			ProbeTimeout: Duration(2 * time.Second),
		},
		Retry: RetrySettings{
			InitialInterval: Duration(policy.InitialInterval),
			MaxInterval:     Duration(policy.MaxInterval),
			Multiplier:      policy.Multiplier,
			Jitter:          policy.Jitter,
		},
	}
}

// RetryPolicy converts the configured retry settings into the policy the
// health package consumes.
func (c Config) RetryPolicy() health.RetryPolicy {
	return health.RetryPolicy{
		InitialInterval: c.Retry.InitialInterval.Std(),
		MaxInterval:     c.Retry.MaxInterval.Std(),
		Multiplier:      c.Retry.Multiplier,
		Jitter:          c.Retry.Jitter,
	}
}
