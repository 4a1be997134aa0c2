package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"readycheck/internal/dependency"
	"readycheck/internal/environment"
)

// Duration wraps time.Duration so YAML values like "5s" or "250ms" parse
// directly.
type Duration time.Duration

// UnmarshalYAML parses a duration string or an integer nanosecond count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, perr := time.ParseDuration(raw)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var ns int64
	if err := value.Decode(&ns); err != nil {
		return fmt.Errorf("invalid duration value on line %d", value.Line)
	}
	*d = Duration(ns)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full readycheck configuration, layered from defaults, the
// user-level file, and the project-level file.
type Config struct {
	Environment EnvironmentSettings                   `yaml:"environment"`
	Services    map[string]map[string]ServiceOverride `yaml:"services" validate:"dive,dive"`
	Retry       RetrySettings                         `yaml:"retry"`
	GoldenPath  GoldenPathSettings                    `yaml:"goldenPath"`
}

// EnvironmentSettings tune environment detection.
type EnvironmentSettings struct {
	// OverrideVar names the environment variable that explicitly declares
	// the environment.
	OverrideVar string `yaml:"overrideVar"`
	// ProbeTimeout bounds the metadata-server probe during detection.
	ProbeTimeout Duration `yaml:"probeTimeout"`
}

// ServiceOverride adjusts one service's configuration in one environment.
// Unset fields keep their environment defaults.
type ServiceOverride struct {
	BaseURL    string    `yaml:"baseUrl" validate:"omitempty,url"`
	Timeout    *Duration `yaml:"timeout"`
	MaxRetries *int      `yaml:"maxRetries" validate:"omitempty,min=1,max=10"`
}

// RetrySettings tune the health-probe backoff.
type RetrySettings struct {
	InitialInterval Duration `yaml:"initialInterval"`
	MaxInterval     Duration `yaml:"maxInterval"`
	Multiplier      float64  `yaml:"multiplier" validate:"omitempty,gte=1"`
	Jitter          float64  `yaml:"jitter" validate:"omitempty,gte=0,lte=1"`
}

// GoldenPathSettings control golden-path validation.
type GoldenPathSettings struct {
	// Enabled defaults to true; a pointer distinguishes "unset" from "false"
	// when merging layers.
	Enabled *bool `yaml:"enabled"`
}

// GoldenPathEnabled reports whether golden-path validation should run.
func (c Config) GoldenPathEnabled() bool {
	return c.GoldenPath.Enabled == nil || *c.GoldenPath.Enabled
}

// ServiceOverrides converts the configured per-environment overrides into
// the typed map the environment context service consumes. Unknown
// environment or service names fail rather than being silently dropped.
func (c Config) ServiceOverrides() (map[environment.Type]map[dependency.ServiceType]environment.ServiceConfiguration, error) {
	if len(c.Services) == 0 {
		return nil, nil
	}
	out := make(map[environment.Type]map[dependency.ServiceType]environment.ServiceConfiguration, len(c.Services))
	for envName, services := range c.Services {
		env, ok := environment.ParseType(envName)
		if !ok {
			return nil, fmt.Errorf("unknown environment %q in services config", envName)
		}
		for svcName, override := range services {
			svc, err := dependency.ParseServiceType(svcName)
			if err != nil {
				return nil, fmt.Errorf("in services config for %s: %w", envName, err)
			}
			if override.BaseURL != "" {
				if err := environment.CheckRemoteBaseURL(env, override.BaseURL); err != nil {
					return nil, fmt.Errorf("override for %s/%s: %w", envName, svcName, err)
				}
			}
			cfg := environment.ServiceConfiguration{BaseURL: override.BaseURL}
			if override.Timeout != nil {
				cfg.Timeout = override.Timeout.Std()
			}
			if override.MaxRetries != nil {
				cfg.MaxRetries = *override.MaxRetries
			}
			if out[env] == nil {
				out[env] = make(map[dependency.ServiceType]environment.ServiceConfiguration)
			}
			out[env][svc] = cfg
		}
	}
	return out, nil
}
