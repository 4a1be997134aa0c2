package dependency

import (
	"fmt"
	"sort"
	"strings"
)

// ConfigurationError reports an invalid service/phase/dependency declaration.
// It is raised during resolution, before any network activity happens.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "dependency configuration error: " + e.Reason
}

// Plan is the resolved startup order: the phases that have members, in
// validation order, and the services grouped under each phase.
type Plan struct {
	Phases  []Phase
	Members map[Phase][]ServiceType

	// Dependencies holds the (subset-filtered) depends_on edges for each
	// planned service, so callers can report on unhealthy prerequisites.
	Dependencies map[ServiceType][]ServiceType

	// Excluded lists declared dependencies of planned services that were
	// not part of the requested subset and therefore will not be probed.
	Excluded map[ServiceType][]ServiceType
}

// Services returns every planned service in phase order.
func (p *Plan) Services() []ServiceType {
	var out []ServiceType
	for _, phase := range p.Phases {
		out = append(out, p.Members[phase]...)
	}
	return out
}

// Resolver turns the declarative service/phase/dependency table into an
// ordered validation plan. Resolution is a pure function of its input.
type Resolver struct {
	table []Declaration
}

// NewResolver creates a resolver over the static declaration table.
func NewResolver() *Resolver {
	return &Resolver{table: Declarations()}
}

// NewResolverWithTable creates a resolver over a custom table. Used by tests
// to exercise invalid declarations.
func NewResolverWithTable(table []Declaration) *Resolver {
	return &Resolver{table: table}
}

// ResolveStartupOrder filters the declaration table to the requested subset
// (nil or empty means all services), validates every depends_on edge and
// rejects cycles, then groups the services by phase in phase order.
func (r *Resolver) ResolveStartupOrder(subset []ServiceType) (*Plan, error) {
	byService := make(map[ServiceType]Declaration, len(r.table))
	for _, d := range r.table {
		if _, dup := byService[d.Service]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("service %s declared twice", d.Service)}
		}
		byService[d.Service] = d
	}

	selected, err := r.selectSubset(byService, subset)
	if err != nil {
		return nil, err
	}

	if err := r.validatePhases(byService, selected); err != nil {
		return nil, err
	}
	if err := r.detectCycles(byService); err != nil {
		return nil, err
	}

	plan := &Plan{
		Members:      make(map[Phase][]ServiceType),
		Dependencies: make(map[ServiceType][]ServiceType),
		Excluded:     make(map[ServiceType][]ServiceType),
	}

	// Group by phase, preserving the table's declaration order within a phase.
	for _, d := range r.table {
		if !selected[d.Service] {
			continue
		}
		plan.Members[d.Phase] = append(plan.Members[d.Phase], d.Service)
		for _, dep := range d.DependsOn {
			if selected[dep] {
				plan.Dependencies[d.Service] = append(plan.Dependencies[d.Service], dep)
			} else {
				plan.Excluded[d.Service] = append(plan.Excluded[d.Service], dep)
			}
		}
	}

	phases := make([]Phase, 0, len(plan.Members))
	for phase := range plan.Members {
		phases = append(phases, phase)
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i] < phases[j] })
	plan.Phases = phases

	return plan, nil
}

func (r *Resolver) selectSubset(byService map[ServiceType]Declaration, subset []ServiceType) (map[ServiceType]bool, error) {
	selected := make(map[ServiceType]bool, len(byService))
	if len(subset) == 0 {
		for svc := range byService {
			selected[svc] = true
		}
		return selected, nil
	}
	for _, svc := range subset {
		if _, ok := byService[svc]; !ok {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("service %s is not declared in the dependency table", svc)}
		}
		selected[svc] = true
	}
	return selected, nil
}

// validatePhases rejects any depends_on edge that points to a strictly later
// phase than its dependent. Such a declaration can never be satisfied by
// phased validation and must fail loudly instead of being reordered.
func (r *Resolver) validatePhases(byService map[ServiceType]Declaration, selected map[ServiceType]bool) error {
	for _, d := range r.table {
		if !selected[d.Service] {
			continue
		}
		for _, dep := range d.DependsOn {
			target, ok := byService[dep]
			if !ok {
				return &ConfigurationError{Reason: fmt.Sprintf("service %s depends on undeclared service %s", d.Service, dep)}
			}
			if target.Phase > d.Phase {
				return &ConfigurationError{Reason: fmt.Sprintf(
					"service %s (%s) depends on %s (%s), which runs in a later phase",
					d.Service, d.Phase, dep, target.Phase)}
			}
		}
	}
	return nil
}

// detectCycles walks the full table's edges with three-color DFS and fails
// on the first transitive cycle found.
func (r *Resolver) detectCycles(byService map[ServiceType]Declaration) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[ServiceType]int, len(byService))

	var visit func(svc ServiceType, path []ServiceType) error
	visit = func(svc ServiceType, path []ServiceType) error {
		color[svc] = gray
		path = append(path, svc)
		for _, dep := range byService[svc].DependsOn {
			switch color[dep] {
			case gray:
				return &ConfigurationError{Reason: "dependency cycle: " + formatCycle(append(path, dep))}
			case white:
				if err := visit(dep, path); err != nil {
					return err
				}
			}
		}
		color[svc] = black
		return nil
	}

	for _, d := range r.table {
		if color[d.Service] == white {
			if err := visit(d.Service, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatCycle(path []ServiceType) string {
	parts := make([]string, len(path))
	for i, svc := range path {
		parts[i] = string(svc)
	}
	return strings.Join(parts, " -> ")
}
