package integrators

import "github.com/san-kum/vasoloop/internal/sim"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys sim.System, x sim.State, rate float64, t float64, dt float64) sim.State {
	dx := sys.Derive(x, rate, t)
	result := make(sim.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
