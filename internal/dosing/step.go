package dosing

import "math"

// Step runs one control cycle against limits, which it may update in place.
//
// A nil or untrusted sample commands limits.FallbackRate with the fallback
// and alarm flags set and leaves limits.CurrentRate untouched. A trusted
// sample moves the current rate by exactly MaxDelta toward more support when
// the predicted MAP is below target (less support otherwise), clamps it to
// [MinRate, MaxRate] and stores it as the new current rate.
//
// limits must not be nil.
func Step(limits *DosingLimits, in *ControlInputs) ControlOutput {
	if in == nil || !in.Trusted() {
		return fallback(limits)
	}

	rate := limits.CurrentRate
	if in.PredictedMAP < in.TargetMAP {
		rate += limits.MaxDelta
	} else {
		rate -= limits.MaxDelta
	}

	rate = clamp(rate, limits.MinRate, limits.MaxRate)
	limits.CurrentRate = rate

	return ControlOutput{CommandedRate: rate}
}

func fallback(limits *DosingLimits) ControlOutput {
	return ControlOutput{
		CommandedRate: limits.FallbackRate,
		UseFallback:   true,
		TriggerAlarm:  true,
	}
}

// clamp caps at hi first and floors at lo last, so lo wins when lo > hi.
// A NaN operand yields the other one, so a NaN rate caps to hi.
func clamp(v, lo, hi float64) float64 {
	if v > hi || math.IsNaN(v) {
		v = hi
	}
	if v < lo || math.IsNaN(v) {
		v = lo
	}
	return v
}
