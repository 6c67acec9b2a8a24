package metrics

import "github.com/san-kum/vasoloop/internal/sim"

// ControlEffort is the mean commanded rate in mcg/kg/min.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(tick sim.Tick) {
	c.sum += tick.Output.CommandedRate
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

// RateReversals counts direction changes of the commanded rate, the chatter
// that a fixed-step law produces around the target.
type RateReversals struct {
	prev     float64
	prevDir  int
	started  bool
	reversal int
}

func NewRateReversals() *RateReversals {
	return &RateReversals{}
}

func (r *RateReversals) Name() string { return "rate_reversals" }

func (r *RateReversals) Observe(tick sim.Tick) {
	rate := tick.Output.CommandedRate
	if !r.started {
		r.prev = rate
		r.started = true
		return
	}

	dir := 0
	switch {
	case rate > r.prev:
		dir = 1
	case rate < r.prev:
		dir = -1
	}
	if dir != 0 {
		if r.prevDir != 0 && dir != r.prevDir {
			r.reversal++
		}
		r.prevDir = dir
	}
	r.prev = rate
}

func (r *RateReversals) Value() float64 {
	return float64(r.reversal)
}

func (r *RateReversals) Reset() {
	*r = RateReversals{}
}
