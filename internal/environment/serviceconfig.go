package environment

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"readycheck/internal/dependency"
)

// ServiceConfiguration holds the per-environment probe settings for one
// service. Core has no BaseURL: it is probed in-process.
type ServiceConfiguration struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Local environments are forgiving: developer machines start slowly and
// flake. Remote environments are expected to answer fast or be treated
// as broken.
const (
	localTimeout     = 10 * time.Second
	localMaxRetries  = 3
	remoteTimeout    = 5 * time.Second
	remoteMaxRetries = 2
)

var localPorts = map[dependency.ServiceType]int{
	dependency.ServiceAuth:    8081,
	dependency.ServiceSession: 8082,
	dependency.ServiceBackend: 8083,
}

// defaultServiceConfiguration resolves the built-in configuration for a
// (environment, service) pair.
func defaultServiceConfiguration(env Type, svc dependency.ServiceType) (ServiceConfiguration, error) {
	if !svc.Valid() {
		return ServiceConfiguration{}, fmt.Errorf("unknown service type %q", svc)
	}

	if svc == dependency.ServiceCore {
		cfg := ServiceConfiguration{Timeout: remoteTimeout, MaxRetries: remoteMaxRetries}
		if env.IsLocal() {
			cfg.Timeout, cfg.MaxRetries = localTimeout, localMaxRetries
		}
		return cfg, nil
	}

	if env.IsLocal() {
		return ServiceConfiguration{
			BaseURL:    fmt.Sprintf("http://localhost:%d", localPorts[svc]),
			Timeout:    localTimeout,
			MaxRetries: localMaxRetries,
		}, nil
	}

	short := "prod"
	if env == Staging {
		short = "staging"
	}
	return ServiceConfiguration{
		BaseURL:    fmt.Sprintf("https://%s-%s.run.app", svc, short),
		Timeout:    remoteTimeout,
		MaxRetries: remoteMaxRetries,
	}, nil
}

// CheckRemoteBaseURL enforces the invariant that staging/production base
// URLs never resolve to loopback hosts. Probing localhost from a remote
// process is the historical failure mode this tool exists to prevent.
func CheckRemoteBaseURL(env Type, rawURL string) error {
	if env.IsLocal() || rawURL == "" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q for %s: %w", rawURL, env, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasPrefix(host, "127.") {
		return fmt.Errorf("base URL %q resolves to a loopback host in %s", rawURL, env)
	}
	return nil
}
