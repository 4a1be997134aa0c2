package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"readycheck/internal/dependency"
	"readycheck/internal/environment"
	"readycheck/pkg/logging"
)

const (
	connectTimeout  = 2 * time.Second
	bodySnippetSize = 512
)

// ServiceHealthClient performs local or HTTP health probes against one
// deployment's services and classifies every outcome into a structured
// HealthCheckResult.
//
// Construction fails without an initialized environment context: a client
// must never silently probe localhost from a staging or production process.
type ServiceHealthClient struct {
	envSvc *environment.ContextService
	httpc  *http.Client
}

// NewServiceHealthClient creates a probe client scoped to one validation
// batch. Callers should Close it when the batch completes.
func NewServiceHealthClient(envSvc *environment.ContextService) (*ServiceHealthClient, error) {
	if _, err := envSvc.Context(); err != nil {
		return nil, fmt.Errorf("refusing to create health client: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		DisableKeepAlives: true,
	}
	return &ServiceHealthClient{
		envSvc: envSvc,
		httpc:  &http.Client{Transport: transport},
	}, nil
}

// Close releases any idle connections held by the client.
func (c *ServiceHealthClient) Close() {
	c.httpc.CloseIdleConnections()
}

// Check probes one service and returns a classified result. The total
// request time is bounded by the service's configured timeout; the connect
// phase by a tighter dial timeout.
func (c *ServiceHealthClient) Check(ctx context.Context, app AppState, svc dependency.ServiceType) *HealthCheckResult {
	cfg, err := c.envSvc.ServiceConfiguration(svc)
	if err != nil {
		return &HealthCheckResult{
			Status:       StatusUnknownError,
			ErrorMessage: fmt.Sprintf("cannot resolve configuration for %s: %v", svc, err),
		}
	}

	if svc == dependency.ServiceCore {
		return c.checkLocal(ctx, app, cfg)
	}
	return c.checkHTTP(ctx, svc, cfg)
}

// checkLocal validates the in-process application core via the opaque
// application-state handle.
func (c *ServiceHealthClient) checkLocal(ctx context.Context, app AppState, cfg environment.ServiceConfiguration) *HealthCheckResult {
	start := time.Now()

	if app == nil {
		return &HealthCheckResult{
			Status:       StatusUnknownError,
			ErrorMessage: "no application state handle provided for in-process check",
		}
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := app.Ready(checkCtx); err != nil {
		res := &HealthCheckResult{
			Status:       StatusUnknownError,
			ResponseTime: time.Since(start),
			ErrorMessage: fmt.Sprintf("application core not ready: %v", err),
		}
		if errors.Is(err, context.DeadlineExceeded) {
			res.Status = StatusTimeout
		}
		return res
	}

	return &HealthCheckResult{
		Success:      true,
		Status:       StatusHealthy,
		ResponseTime: time.Since(start),
	}
}

// checkHTTP issues GET {base_url}/health/{service} and classifies the
// outcome. Every branch returns a structured result.
func (c *ServiceHealthClient) checkHTTP(ctx context.Context, svc dependency.ServiceType, cfg environment.ServiceConfiguration) *HealthCheckResult {
	probeURL := strings.TrimRight(cfg.BaseURL, "/") + "/health/" + string(svc)
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, probeURL, nil)
	if err != nil {
		return (&HealthCheckResult{
			Status:       StatusUnknownError,
			ErrorMessage: fmt.Sprintf("failed to build health request: %v", err),
		}).WithDetail("url", probeURL)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		res := (&HealthCheckResult{
			ResponseTime: time.Since(start),
			ErrorMessage: err.Error(),
		}).WithDetail("url", probeURL)
		res.Status = classifyTransportError(err)
		logging.Debug("HealthClient", "Probe %s failed (%s): %v", probeURL, res.Status, err)
		return res
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, bodySnippetSize))
	res := (&HealthCheckResult{
		ResponseTime: time.Since(start),
	}).WithDetail("url", probeURL).WithDetail("status_code", strconv.Itoa(resp.StatusCode))

	if resp.StatusCode == http.StatusOK {
		res.Success = true
		res.Status = StatusHealthy
		res.WithDetail("payload", string(body))
		return res
	}

	res.Status = StatusHTTPError
	res.ErrorMessage = fmt.Sprintf("health endpoint returned status %d", resp.StatusCode)
	res.WithDetail("body", string(body))
	return res
}

// classifyTransportError separates timeouts from connection failures.
func classifyTransportError(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return StatusNetworkError
	}
	if errors.Is(err, context.Canceled) {
		return StatusTimeout
	}
	// url.Error wrapping a dial failure lands here.
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "no such host") {
		return StatusNetworkError
	}
	return StatusNetworkError
}
