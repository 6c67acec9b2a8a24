// Package dosing implements the single-step vasopressor safety controller.
//
// The package defines the data contracts exchanged with the embedding
// control loop and the step function that turns one estimator sample into
// one infusion command:
//
//   - [DosingLimits]: hard rate bounds plus the carried current rate
//   - [ControlInputs]: one sample from the upstream MAP estimator
//   - [ControlOutput]: the commanded rate and the safety flags
//   - [Step]: the bounded bang-bang control law
//
// # Example
//
//	limits := dosing.DosingLimits{CurrentRate: 0.05, MinRate: 0.02, MaxRate: 0.8, MaxDelta: 0.1, FallbackRate: 0.05}
//	out := dosing.Step(&limits, &dosing.ControlInputs{PredictedMAP: 55, TargetMAP: 65, Confidence: 0.8})
//	// out.CommandedRate == 0.15, limits.CurrentRate == 0.15
//
// # Thread Safety
//
// Step performs no locking. A DosingLimits value must be owned by exactly
// one control loop; concurrent callers have to serialize access themselves
// (see control.Safety).
package dosing
