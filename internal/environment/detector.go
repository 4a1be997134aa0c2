package environment

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/compute/metadata"

	"readycheck/pkg/logging"
)

// Confidence arithmetic. The thresholds (staging-with-two-signals >= 0.7,
// no-signal < 0.5) are the binding contract; the weights are ours.
const (
	explicitConfidence  = 0.80
	signalBase          = 0.50
	signalIncrement     = 0.15
	confidenceCap       = 0.95
	fallbackConfidence  = 0.30
	defaultProbeTimeout = 2 * time.Second
)

// DefaultEnvVarName is the explicit environment override variable.
const DefaultEnvVarName = "READYCHECK_ENVIRONMENT"

// Cloud Run runtime identity variables.
const (
	envServiceName = "K_SERVICE"
	envRevision    = "K_REVISION"
	envProjectID   = "GOOGLE_CLOUD_PROJECT"
)

// Metadata attribute paths probed for self-discovery.
const (
	metaServiceName = "instance/attributes/goog-cloudrun-service-name"
	metaProjectID   = "project/project-id"
	metaRegion      = "instance/region"
)

// MetadataClient is the slice of the GCE metadata client the detector needs.
// Satisfied by *metadata.Client; replaced by a fake in tests.
type MetadataClient interface {
	GetWithContext(ctx context.Context, suffix string) (string, error)
}

// DetectorOptions configures a Detector. The zero value gives production
// behavior: real process environment and the platform metadata server.
type DetectorOptions struct {
	// EnvVarName overrides the explicit environment variable name.
	EnvVarName string
	// ProbeTimeout bounds each metadata probe.
	ProbeTimeout time.Duration
	// Metadata replaces the metadata client (tests).
	Metadata MetadataClient
	// Getenv replaces os environment lookups (tests).
	Getenv func(string) string
}

// Detector infers the environment type, cloud platform and a confidence
// score from local variables and best-effort cloud metadata probes.
//
// Detection executes at most once per Detector: the mutex serializes
// concurrent first callers onto a single in-flight detection, and the
// result is memoized until ClearCache.
type Detector struct {
	envVar       string
	probeTimeout time.Duration
	meta         MetadataClient
	getenv       func(string) string

	mu     sync.Mutex
	cached *Context
}

// NewDetector creates a detector.
func NewDetector(opts DetectorOptions) *Detector {
	d := &Detector{
		envVar:       opts.EnvVarName,
		probeTimeout: opts.ProbeTimeout,
		meta:         opts.Metadata,
		getenv:       opts.Getenv,
	}
	if d.envVar == "" {
		d.envVar = DefaultEnvVarName
	}
	if d.probeTimeout <= 0 {
		d.probeTimeout = defaultProbeTimeout
	}
	if d.getenv == nil {
		d.getenv = envFromProcess
	}
	if d.meta == nil {
		d.meta = metadata.NewClient(&http.Client{Timeout: d.probeTimeout})
	}
	return d
}

// Detect returns the memoized environment context, running detection on the
// first call. It never fails on unreachable metadata: absent signals are
// absent evidence, not errors.
func (d *Detector) Detect(ctx context.Context) (*Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached != nil {
		return d.cached, nil
	}

	envCtx := d.detect(ctx)
	d.cached = envCtx
	logging.Info("EnvironmentDetector", "Detected environment %s on %s (confidence %.2f)",
		envCtx.Environment, envCtx.Platform, envCtx.ConfidenceScore)
	return envCtx, nil
}

// ClearCache drops the memoized context. Test-only escape hatch.
func (d *Detector) ClearCache() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = nil
}

func (d *Detector) detect(ctx context.Context) *Context {
	meta := make(map[string]string)

	explicit, explicitSet := Type(""), false
	if raw := d.getenv(d.envVar); raw != "" {
		if t, ok := ParseType(raw); ok {
			explicit, explicitSet = t, true
			meta["explicit_variable"] = d.envVar + "=" + raw
		} else {
			meta["explicit_variable_unrecognized"] = raw
			logging.Warn("EnvironmentDetector", "Ignoring unrecognized %s value %q", d.envVar, raw)
		}
	}

	serviceName := d.signal(ctx, meta, "service_name", metaServiceName, envServiceName)
	projectID := d.signal(ctx, meta, "project_id", metaProjectID, envProjectID)
	region := d.signal(ctx, meta, "region", metaRegion, "")
	revision := ""
	if v := d.getenv(envRevision); v != "" {
		revision = v
		meta["revision_source"] = "env:" + envRevision
	}

	platform := PlatformUnknown
	if serviceName != "" || region != "" || revision != "" {
		platform = CloudRun
	}

	// Environment votes come from naming conventions on identity signals.
	votes := make(map[Type]int)
	if t, ok := inferFromName(serviceName); ok {
		votes[t]++
	}
	if t, ok := inferFromName(projectID); ok {
		votes[t]++
	}

	envType, confidence := d.score(explicit, explicitSet, votes, meta)

	return &Context{
		Environment:       envType,
		Platform:          platform,
		ServiceName:       serviceName,
		ProjectID:         projectID,
		Region:            region,
		Revision:          revision,
		ConfidenceScore:   confidence,
		DetectionMetadata: meta,
		DetectedAt:        time.Now(),
	}
}

// signal resolves one identity signal, preferring the metadata server and
// falling back to the local environment variable. A failed probe is recorded
// and ignored.
func (d *Detector) signal(ctx context.Context, meta map[string]string, name, metaPath, envName string) string {
	probeCtx, cancel := context.WithTimeout(ctx, d.probeTimeout)
	defer cancel()

	if v, err := d.meta.GetWithContext(probeCtx, metaPath); err == nil && v != "" {
		meta[name+"_source"] = "metadata:" + metaPath
		return strings.TrimSpace(v)
	} else if err != nil {
		logging.Debug("EnvironmentDetector", "Metadata probe %s unavailable: %v", metaPath, err)
	}

	if envName != "" {
		if v := d.getenv(envName); v != "" {
			meta[name+"_source"] = "env:" + envName
			return v
		}
	}
	return ""
}

func (d *Detector) score(explicit Type, explicitSet bool, votes map[Type]int, meta map[string]string) (Type, float64) {
	if explicitSet {
		confidence := explicitConfidence + signalIncrement*float64(votes[explicit])
		if confidence > confidenceCap {
			confidence = confidenceCap
		}
		return explicit, confidence
	}

	consensus, count := consensusVote(votes)
	if count > 0 {
		confidence := signalBase + signalIncrement*float64(count)
		if confidence > confidenceCap {
			confidence = confidenceCap
		}
		return consensus, confidence
	}

	// No evidence at all. Never guess a remote environment.
	meta["fallback"] = "no detection signals"
	return Development, fallbackConfidence
}

// consensusVote picks the environment with the most agreeing signals. Ties
// resolve toward the stricter environment so ambiguous evidence is treated
// cautiously rather than optimistically.
func consensusVote(votes map[Type]int) (Type, int) {
	order := []Type{Production, Staging, Testing, Development}
	best, bestCount := Type(""), 0
	for _, t := range order {
		if votes[t] > bestCount {
			best, bestCount = t, votes[t]
		}
	}
	return best, bestCount
}

func envFromProcess(name string) string {
	return os.Getenv(name)
}

// inferFromName maps deployment naming conventions ("backend-staging",
// "proj-prod") to an environment type.
func inferFromName(name string) (Type, bool) {
	n := strings.ToLower(name)
	switch {
	case n == "":
		return "", false
	case strings.HasSuffix(n, "-staging") || strings.HasSuffix(n, "-stage") || strings.Contains(n, "staging"):
		return Staging, true
	case strings.HasSuffix(n, "-prod") || strings.HasSuffix(n, "-production") || strings.Contains(n, "production"):
		return Production, true
	case strings.HasSuffix(n, "-test") || strings.Contains(n, "testing"):
		return Testing, true
	case strings.HasSuffix(n, "-dev") || strings.Contains(n, "development"):
		return Development, true
	}
	return "", false
}
