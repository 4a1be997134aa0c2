package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"readycheck/internal/dependency"
	"readycheck/pkg/logging"
)

// ErrNotInitialized is returned by accessors called before Initialize.
// Callers must never receive a guessed environment.
var ErrNotInitialized = errors.New("environment context not initialized: call Initialize first")

// ContextService owns the process-wide environment context. It initializes
// the detector exactly once and exposes the immutable Context plus the
// per-environment service configurations.
//
// There is no hidden global: construct one ContextService at process start
// and inject it into every component that needs environment awareness.
type ContextService struct {
	detector  *Detector
	overrides map[Type]map[dependency.ServiceType]ServiceConfiguration

	mu     sync.RWMutex
	envCtx *Context
}

// NewContextService creates an uninitialized context service around the
// given detector.
func NewContextService(detector *Detector) *ContextService {
	return &ContextService{detector: detector}
}

// NewContextServiceWithOverrides additionally applies per-environment
// service configuration overrides (from the config file). Overrides are
// assumed to have passed the loopback invariant check at load time.
func NewContextServiceWithOverrides(detector *Detector, overrides map[Type]map[dependency.ServiceType]ServiceConfiguration) *ContextService {
	return &ContextService{detector: detector, overrides: overrides}
}

// Initialize runs environment detection once. It is idempotent and safe
// for concurrent callers: the double-checked lock ensures all first callers
// share a single detection.
func (s *ContextService) Initialize(ctx context.Context) error {
	s.mu.RLock()
	initialized := s.envCtx != nil
	s.mu.RUnlock()
	if initialized {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.envCtx != nil {
		return nil
	}

	envCtx, err := s.detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("environment detection failed: %w", err)
	}
	s.envCtx = envCtx
	logging.Debug("EnvironmentContext", "Initialized for %s (service=%q project=%q)",
		envCtx.Environment, envCtx.ServiceName, envCtx.ProjectID)
	return nil
}

// Initialized reports whether Initialize has completed.
func (s *ContextService) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.envCtx != nil
}

// Context returns the detected environment context, or ErrNotInitialized
// before Initialize. It never falls back to a default environment.
func (s *ContextService) Context() (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.envCtx == nil {
		return nil, ErrNotInitialized
	}
	return s.envCtx, nil
}

// ServiceConfiguration resolves the probe configuration for svc in the
// detected environment, applying any configured overrides.
func (s *ContextService) ServiceConfiguration(svc dependency.ServiceType) (ServiceConfiguration, error) {
	envCtx, err := s.Context()
	if err != nil {
		return ServiceConfiguration{}, err
	}

	cfg, err := defaultServiceConfiguration(envCtx.Environment, svc)
	if err != nil {
		return ServiceConfiguration{}, err
	}

	if byService, ok := s.overrides[envCtx.Environment]; ok {
		if o, ok := byService[svc]; ok {
			if o.BaseURL != "" {
				cfg.BaseURL = o.BaseURL
			}
			if o.Timeout > 0 {
				cfg.Timeout = o.Timeout
			}
			if o.MaxRetries > 0 {
				cfg.MaxRetries = o.MaxRetries
			}
		}
	}

	if err := CheckRemoteBaseURL(envCtx.Environment, cfg.BaseURL); err != nil {
		return ServiceConfiguration{}, err
	}
	return cfg, nil
}
