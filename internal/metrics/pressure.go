package metrics

import "github.com/san-kum/vasoloop/internal/sim"

// TimeInRange is the fraction of ticks whose true MAP lies within
// [target-Below, target+Above].
type TimeInRange struct {
	Below, Above float64
	inRange      int
	samples      int
}

func NewTimeInRange(below, above float64) *TimeInRange {
	return &TimeInRange{Below: below, Above: above}
}

func (m *TimeInRange) Name() string { return "time_in_range" }

func (m *TimeInRange) Observe(tick sim.Tick) {
	m.samples++
	if tick.TrueMAP >= tick.Target-m.Below && tick.TrueMAP <= tick.Target+m.Above {
		m.inRange++
	}
}

func (m *TimeInRange) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return float64(m.inRange) / float64(m.samples)
}

func (m *TimeInRange) Reset() {
	m.inRange = 0
	m.samples = 0
}

// Hypotension is the fraction of ticks with true MAP below Threshold.
type Hypotension struct {
	Threshold float64
	below     int
	samples   int
}

func NewHypotension(threshold float64) *Hypotension {
	return &Hypotension{Threshold: threshold}
}

func (h *Hypotension) Name() string { return "hypotension" }

func (h *Hypotension) Observe(tick sim.Tick) {
	h.samples++
	if tick.TrueMAP < h.Threshold {
		h.below++
	}
}

func (h *Hypotension) Value() float64 {
	if h.samples == 0 {
		return 0
	}
	return float64(h.below) / float64(h.samples)
}

func (h *Hypotension) Reset() {
	h.below = 0
	h.samples = 0
}
