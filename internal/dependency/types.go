package dependency

import "fmt"

// ServiceType identifies one of the deployed services validated at startup.
type ServiceType string

const (
	// ServiceCore is the in-process application core. It is probed locally
	// through the application state handle rather than over HTTP.
	ServiceCore ServiceType = "core"
	// ServiceAuth is the authentication service.
	ServiceAuth ServiceType = "auth"
	// ServiceSession is the session store service.
	ServiceSession ServiceType = "session"
	// ServiceBackend is the backend data service.
	ServiceBackend ServiceType = "backend"
)

// AllServiceTypes returns every known service type in declaration order.
func AllServiceTypes() []ServiceType {
	return []ServiceType{ServiceCore, ServiceAuth, ServiceSession, ServiceBackend}
}

// Valid reports whether s is a known service type.
func (s ServiceType) Valid() bool {
	switch s {
	case ServiceCore, ServiceAuth, ServiceSession, ServiceBackend:
		return true
	}
	return false
}

// DisplayName returns the human-readable name used in reports.
func (s ServiceType) DisplayName() string {
	switch s {
	case ServiceCore:
		return "Application Core"
	case ServiceAuth:
		return "Authentication Service"
	case ServiceSession:
		return "Session Service"
	case ServiceBackend:
		return "Backend Service"
	default:
		return string(s)
	}
}

// ParseServiceType parses a user-supplied service name.
func ParseServiceType(s string) (ServiceType, error) {
	st := ServiceType(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown service type %q", s)
	}
	return st, nil
}

// Phase is an ordinal grouping of services. Every service in a phase must be
// healthy before the next phase is validated.
type Phase int

const (
	Phase1Core Phase = iota + 1
	Phase2Auth
	Phase3Backend
)

// AllPhases returns the phases in validation order.
func AllPhases() []Phase {
	return []Phase{Phase1Core, Phase2Auth, Phase3Backend}
}

// String makes Phase satisfy the fmt.Stringer interface.
func (p Phase) String() string {
	switch p {
	case Phase1Core:
		return "phase-1-core"
	case Phase2Auth:
		return "phase-2-auth"
	case Phase3Backend:
		return "phase-3-backend"
	default:
		return fmt.Sprintf("phase-%d", int(p))
	}
}

// Critical reports whether a failure in this phase halts validation.
// Core and auth failures make every later check meaningless.
func (p Phase) Critical() bool {
	return p == Phase1Core || p == Phase2Auth
}

// Declaration statically binds a service to its phase and dependencies.
type Declaration struct {
	Service   ServiceType
	Phase     Phase
	DependsOn []ServiceType
}

// defaultTable is the static dependency declaration for the deployment.
// A service's phase must be >= every phase of its declared dependencies;
// the resolver enforces this before any network activity.
var defaultTable = []Declaration{
	{Service: ServiceCore, Phase: Phase1Core},
	{Service: ServiceAuth, Phase: Phase2Auth, DependsOn: []ServiceType{ServiceCore}},
	{Service: ServiceSession, Phase: Phase2Auth, DependsOn: []ServiceType{ServiceCore}},
	{Service: ServiceBackend, Phase: Phase3Backend, DependsOn: []ServiceType{ServiceAuth, ServiceCore}},
}

// Declarations returns a copy of the static declaration table.
func Declarations() []Declaration {
	table := make([]Declaration, len(defaultTable))
	for i, d := range defaultTable {
		deps := make([]ServiceType, len(d.DependsOn))
		copy(deps, d.DependsOn)
		table[i] = Declaration{Service: d.Service, Phase: d.Phase, DependsOn: deps}
	}
	return table
}
