package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/vasoloop/internal/dosing"
)

// State is the plant state vector; index 0 is always the true MAP in mmHg.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MAP returns the mean arterial pressure carried in the state.
func (s State) MAP() float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[0]
}

// System is a patient model driven by an infusion rate in mcg/kg/min.
type System interface {
	Derive(x State, rate float64, t float64) State
	StateDim() int
}

type Integrator interface {
	Step(sys System, x State, rate float64, t float64, dt float64) State
}

// Controller turns one (possibly missing) estimator sample into a command.
type Controller interface {
	Compute(in *dosing.ControlInputs, t float64) dosing.ControlOutput
}

// Estimator stands in for the upstream MAP predictor. A nil sample models a
// dropped measurement.
type Estimator interface {
	Sample(trueMAP, target float64, t float64) *dosing.ControlInputs
}

// Actuator receives every tick's command along with the reason for any
// fallback.
type Actuator interface {
	Apply(tick Tick) error
}

type Metric interface {
	Name() string
	Observe(tick Tick)
	Value() float64
	Reset()
}

type Observer interface {
	OnTick(tick Tick)
}

// Tick records one control cycle.
type Tick struct {
	Time    float64
	TrueMAP float64
	Target  float64
	Inputs  *dosing.ControlInputs
	Output  dosing.ControlOutput
	Reason  dosing.RejectReason
}

type Config struct {
	Dt            float64
	Duration      float64
	ControlPeriod float64
	TargetMAP     float64
	Seed          int64
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            0.5,
		Duration:      1800,
		ControlPeriod: 5,
		TargetMAP:     65,
		ValidateState: true,
	}
}

type Result struct {
	Ticks      []Tick
	States     []State
	Times      []float64
	Metrics    map[string]float64
	StepsTaken int
	Errors     []error
}

// Rates returns the commanded rate of every tick.
func (r *Result) Rates() []float64 {
	out := make([]float64, len(r.Ticks))
	for i, tk := range r.Ticks {
		out[i] = tk.Output.CommandedRate
	}
	return out
}

// MAPs returns the true MAP at every tick.
func (r *Result) MAPs() []float64 {
	out := make([]float64, len(r.Ticks))
	for i, tk := range r.Ticks {
		out[i] = tk.TrueMAP
	}
	return out
}

// ErrAborted marks a run that stopped before its configured duration.
var ErrAborted = errors.New("simulation aborted")

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %s", e.Step, e.Time, e.Message)
}
