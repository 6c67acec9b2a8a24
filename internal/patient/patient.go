package patient

import (
	"fmt"
	"sort"

	"github.com/san-kum/vasoloop/internal/sim"
)

type Patient struct {
	Baseline     float64 // untreated MAP, mmHg
	Gain         float64 // mmHg per mcg/kg/min at steady state
	Sensitivity  float64 // multiplier on Gain
	Tau          float64 // MAP time constant, s
	Lag          float64 // effect-site time constant, s
	DriftPerHour float64 // baseline decline, mmHg/h
	DropMMHg     float64 // hypotensive episode depth
	DropAt       float64 // episode start, s
	DropFor      float64 // episode length, s
}

func NewStable() *Patient {
	return &Patient{
		Baseline:    68,
		Gain:        120,
		Sensitivity: 1,
		Tau:         60,
		Lag:         30,
	}
}

func NewSeptic() *Patient {
	return &Patient{
		Baseline:     55,
		Gain:         100,
		Sensitivity:  1,
		Tau:          60,
		Lag:          30,
		DriftPerHour: 2,
		DropMMHg:     10,
		DropAt:       600,
		DropFor:      300,
	}
}

func NewRefractory() *Patient {
	return &Patient{
		Baseline:    50,
		Gain:        40,
		Sensitivity: 1,
		Tau:         90,
		Lag:         45,
	}
}

func NewSensitive() *Patient {
	return &Patient{
		Baseline:    58,
		Gain:        250,
		Sensitivity: 1,
		Tau:         40,
		Lag:         20,
	}
}

var profiles = map[string]func() *Patient{
	"stable":     NewStable,
	"septic":     NewSeptic,
	"refractory": NewRefractory,
	"sensitive":  NewSensitive,
}

// NewProfile returns a fresh patient for a named profile.
func NewProfile(name string) (*Patient, error) {
	fn, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown patient profile: %s", name)
	}
	return fn(), nil
}

func ListProfiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Patient) StateDim() int {
	return 2
}

// InitialState starts untreated at the baseline pressure.
func (p *Patient) InitialState() sim.State {
	return sim.State{p.Baseline, 0}
}

// BaselineAt is the untreated MAP at time t including drift and episodes.
func (p *Patient) BaselineAt(t float64) float64 {
	b := p.Baseline - p.DriftPerHour*t/3600
	if p.DropFor > 0 && t >= p.DropAt && t < p.DropAt+p.DropFor {
		b -= p.DropMMHg
	}
	return b
}

func (p *Patient) Derive(x sim.State, rate float64, t float64) sim.State {
	mapNow := x[0]
	effect := x[1]

	dEffect := 0.0
	if p.Lag > 0 {
		dEffect = (rate - effect) / p.Lag
	}

	steady := p.BaselineAt(t) + p.Gain*p.Sensitivity*effect
	dMAP := (steady - mapNow) / p.Tau

	return sim.State{dMAP, dEffect}
}

// RateFor returns the steady-state rate that holds target at t=0.
func (p *Patient) RateFor(target float64) float64 {
	g := p.Gain * p.Sensitivity
	if g == 0 {
		return 0
	}
	return (target - p.Baseline) / g
}

func (p *Patient) GetParams() map[string]float64 {
	return map[string]float64{
		"baseline":    p.Baseline,
		"gain":        p.Gain,
		"sensitivity": p.Sensitivity,
		"tau":         p.Tau,
		"lag":         p.Lag,
	}
}

func (p *Patient) SetParam(name string, value float64) error {
	switch name {
	case "baseline":
		p.Baseline = value
	case "gain":
		p.Gain = value
	case "sensitivity":
		p.Sensitivity = value
	case "tau":
		if value <= 0 {
			return fmt.Errorf("tau must be positive, got %f", value)
		}
		p.Tau = value
	case "lag":
		p.Lag = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
