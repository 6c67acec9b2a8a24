package integrators

import "github.com/san-kum/vasoloop/internal/sim"

// RK4 is a classic fourth-order Runge-Kutta stepper. The infusion rate is
// held constant over the step, matching a zero-order-hold pump.
type RK4 struct {
	k1, k2, k3, k4 sim.State
	scratch        sim.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.k1) != n {
		r.k1 = make(sim.State, n)
		r.k2 = make(sim.State, n)
		r.k3 = make(sim.State, n)
		r.k4 = make(sim.State, n)
		r.scratch = make(sim.State, n)
	}
}

func (r *RK4) Step(sys sim.System, x sim.State, rate float64, t, dt float64) sim.State {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k1, sys.Derive(x, rate, t))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k1[i]
	}
	copy(r.k2, sys.Derive(r.scratch, rate, t+dt*0.5))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*r.k2[i]
	}
	copy(r.k3, sys.Derive(r.scratch, rate, t+dt*0.5))

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*r.k3[i]
	}
	copy(r.k4, sys.Derive(r.scratch, rate, t+dt))

	result := make(sim.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(r.k1[i]+2*r.k2[i]+2*r.k3[i]+r.k4[i])
	}

	return result
}
