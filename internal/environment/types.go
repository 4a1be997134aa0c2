package environment

import (
	"strings"
	"time"
)

// Type classifies the runtime environment the process is executing in.
type Type string

const (
	Testing     Type = "testing"
	Development Type = "development"
	Staging     Type = "staging"
	Production  Type = "production"
)

// Valid reports whether t is a known environment type.
func (t Type) Valid() bool {
	switch t {
	case Testing, Development, Staging, Production:
		return true
	}
	return false
}

// IsLocal reports whether t resolves services to loopback hosts.
func (t Type) IsLocal() bool {
	return t == Testing || t == Development
}

// ParseType recognizes the common spellings of each environment name.
func ParseType(s string) (Type, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "test", "testing":
		return Testing, true
	case "dev", "develop", "development", "local":
		return Development, true
	case "stage", "staging":
		return Staging, true
	case "prod", "production":
		return Production, true
	}
	return "", false
}

// CloudPlatform identifies where the process is executing.
type CloudPlatform string

const (
	CloudRun        CloudPlatform = "cloud-run"
	PlatformUnknown CloudPlatform = "unknown"
)

// Context is the result of environment detection. It is created once by
// ContextService.Initialize and never written afterwards, so readers need
// no locking.
type Context struct {
	Environment       Type
	Platform          CloudPlatform
	ServiceName       string
	ProjectID         string
	Region            string
	Revision          string
	ConfidenceScore   float64
	DetectionMetadata map[string]string
	DetectedAt        time.Time
}
