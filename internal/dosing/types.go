package dosing

import "math"

const (
	// MinConfidence is the lowest estimator confidence that is still trusted.
	MinConfidence = 0.5
	// MaxConfidence is the highest valid estimator confidence.
	MaxConfidence = 1.0
)

// DosingLimits holds the hard safety bounds and the carried infusion rate.
// All rates are in mcg/kg/min.
type DosingLimits struct {
	CurrentRate  float64 `json:"current_rate_mcg_per_kg_min" yaml:"current_rate_mcg_per_kg_min"`
	MinRate      float64 `json:"min_rate_mcg_per_kg_min" yaml:"min_rate_mcg_per_kg_min"`
	MaxRate      float64 `json:"max_rate_mcg_per_kg_min" yaml:"max_rate_mcg_per_kg_min"`
	MaxDelta     float64 `json:"max_delta_mcg_per_kg_min" yaml:"max_delta_mcg_per_kg_min"`
	FallbackRate float64 `json:"fallback_rate_mcg_per_kg_min" yaml:"fallback_rate_mcg_per_kg_min"`
}

// ControlInputs is one sample produced by the upstream MAP estimator.
type ControlInputs struct {
	PredictedMAP float64 `json:"predicted_map_mmhg" yaml:"predicted_map_mmhg"`
	// HypotensionRisk is carried for the estimator contract; the control law ignores it.
	HypotensionRisk float64 `json:"hypotension_risk" yaml:"hypotension_risk"`
	Confidence      float64 `json:"confidence" yaml:"confidence"`
	TargetMAP       float64 `json:"clinician_target_map_mmhg" yaml:"clinician_target_map_mmhg"`
}

// ControlOutput is the command produced by one Step.
type ControlOutput struct {
	CommandedRate float64 `json:"commanded_rate_mcg_per_kg_min" yaml:"commanded_rate_mcg_per_kg_min"`
	UseFallback   bool    `json:"use_fallback_profile" yaml:"use_fallback_profile"`
	TriggerAlarm  bool    `json:"trigger_alarm" yaml:"trigger_alarm"`
}

// Mode is the transient controller state a step ended in.
type Mode int

const (
	ModeTracking Mode = iota
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeTracking:
		return "tracking"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Mode reports which branch produced the output.
func (o ControlOutput) Mode() Mode {
	if o.UseFallback {
		return ModeFallback
	}
	return ModeTracking
}

// RejectReason names the first check an input sample failed.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonMissing
	ReasonConfidenceNotFinite
	ReasonConfidenceLow
	ReasonConfidenceHigh
	ReasonPredictedNotFinite
	ReasonTargetNotFinite
)

var reasonNames = map[RejectReason]string{
	ReasonNone:                "none",
	ReasonMissing:             "missing sample",
	ReasonConfidenceNotFinite: "confidence not finite",
	ReasonConfidenceLow:       "confidence below threshold",
	ReasonConfidenceHigh:      "confidence above 1",
	ReasonPredictedNotFinite:  "predicted MAP not finite",
	ReasonTargetNotFinite:     "target MAP not finite",
}

func (r RejectReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Reason returns why the sample would be rejected, or ReasonNone.
// HypotensionRisk is deliberately not inspected.
func (in ControlInputs) Reason() RejectReason {
	switch {
	case !finite(in.Confidence):
		return ReasonConfidenceNotFinite
	case in.Confidence < MinConfidence:
		return ReasonConfidenceLow
	case in.Confidence > MaxConfidence:
		return ReasonConfidenceHigh
	case !finite(in.PredictedMAP):
		return ReasonPredictedNotFinite
	case !finite(in.TargetMAP):
		return ReasonTargetNotFinite
	}
	return ReasonNone
}

// Trusted reports whether the sample may drive the control law.
func (in ControlInputs) Trusted() bool {
	return in.Reason() == ReasonNone
}

// InputReason is Reason extended to a possibly missing sample.
func InputReason(in *ControlInputs) RejectReason {
	if in == nil {
		return ReasonMissing
	}
	return in.Reason()
}
