package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/vasoloop/internal/control"
	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/integrators"
	"github.com/san-kum/vasoloop/internal/metrics"
	"github.com/san-kum/vasoloop/internal/patient"
	"github.com/san-kum/vasoloop/internal/sim"
)

// HypotensionThreshold is the MAP below which a tick counts as hypotensive.
const HypotensionThreshold = 65.0

type ControllerFactory func(limits dosing.DosingLimits) (sim.Controller, error)

type Registry struct {
	integrators map[string]func() sim.Integrator
	controllers map[string]ControllerFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() sim.Integrator),
		controllers: make(map[string]ControllerFactory),
	}

	r.integrators["euler"] = func() sim.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() sim.Integrator { return integrators.NewRK4() }

	r.controllers["safety"] = func(limits dosing.DosingLimits) (sim.Controller, error) {
		return control.NewSafety(limits)
	}
	r.controllers["fixed"] = func(limits dosing.DosingLimits) (sim.Controller, error) {
		return control.NewFixed(limits.FallbackRate), nil
	}

	return r
}

func (r *Registry) GetProfile(name string) (*patient.Patient, error) {
	return patient.NewProfile(name)
}

func (r *Registry) GetIntegrator(name string) (sim.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetController(name string, limits dosing.DosingLimits) (sim.Controller, error) {
	fn, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("unknown controller: %s", name)
	}
	return fn(limits)
}

func (r *Registry) ListProfiles() []string {
	return patient.ListProfiles()
}

func (r *Registry) ListIntegrators() []string {
	return sortedKeys(r.integrators)
}

func (r *Registry) ListControllers() []string {
	return sortedKeys(r.controllers)
}

func (r *Registry) DefaultMetrics() []sim.Metric {
	return metrics.Defaults(HypotensionThreshold)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
