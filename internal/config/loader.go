package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"readycheck/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/readycheck"
	projectConfigDir = ".readycheck"
	configFileName   = "config.yaml"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load layers the configuration: built-in defaults, then the user file
// (~/.config/readycheck/config.yaml), then the project file
// (./.readycheck/config.yaml). Missing files are fine; malformed or invalid
// files are not.
func Load() (Config, error) {
	cfg := DefaultConfig()

	userPath, err := getUserConfigPath()
	if err != nil {
		logging.Warn("Config", "could not determine user config path: %v", err)
	} else if _, statErr := os.Stat(userPath); statErr == nil {
		overlay, loadErr := loadConfigFromFile(userPath)
		if loadErr != nil {
			return Config{}, fmt.Errorf("loading user config from %s: %w", userPath, loadErr)
		}
		cfg = mergeConfigs(cfg, overlay)
	}

	projectPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "could not determine project config path: %v", err)
	} else if _, statErr := os.Stat(projectPath); statErr == nil {
		overlay, loadErr := loadConfigFromFile(projectPath)
		if loadErr != nil {
			return Config{}, fmt.Errorf("loading project config from %s: %w", projectPath, loadErr)
		}
		cfg = mergeConfigs(cfg, overlay)
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

func loadConfigFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeConfigs merges 'overlay' into 'base'. Scalars override when set;
// service overrides merge per environment and service.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Environment.OverrideVar != "" {
		merged.Environment.OverrideVar = overlay.Environment.OverrideVar
	}
	if overlay.Environment.ProbeTimeout != 0 {
		merged.Environment.ProbeTimeout = overlay.Environment.ProbeTimeout
	}

	if overlay.Retry.InitialInterval != 0 {
		merged.Retry.InitialInterval = overlay.Retry.InitialInterval
	}
	if overlay.Retry.MaxInterval != 0 {
		merged.Retry.MaxInterval = overlay.Retry.MaxInterval
	}
	if overlay.Retry.Multiplier != 0 {
		merged.Retry.Multiplier = overlay.Retry.Multiplier
	}
	if overlay.Retry.Jitter != 0 {
		merged.Retry.Jitter = overlay.Retry.Jitter
	}

	if overlay.GoldenPath.Enabled != nil {
		merged.GoldenPath.Enabled = overlay.GoldenPath.Enabled
	}

	for envName, services := range overlay.Services {
		if merged.Services == nil {
			merged.Services = make(map[string]map[string]ServiceOverride)
		}
		if merged.Services[envName] == nil {
			merged.Services[envName] = make(map[string]ServiceOverride)
		}
		for svcName, override := range services {
			existing := merged.Services[envName][svcName]
			if override.BaseURL != "" {
				existing.BaseURL = override.BaseURL
			}
			if override.Timeout != nil {
				existing.Timeout = override.Timeout
			}
			if override.MaxRetries != nil {
				existing.MaxRetries = override.MaxRetries
			}
			merged.Services[envName][svcName] = existing
		}
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path.
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
