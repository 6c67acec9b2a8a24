package control

import "github.com/san-kum/vasoloop/internal/dosing"

// Fixed always runs the fallback profile. It raises no alarms: it is a
// reference arm, not a safety path.
type Fixed struct {
	rate float64
}

func NewFixed(rate float64) *Fixed {
	return &Fixed{rate: rate}
}

func (f *Fixed) Compute(in *dosing.ControlInputs, t float64) dosing.ControlOutput {
	return dosing.ControlOutput{CommandedRate: f.rate, UseFallback: true}
}
