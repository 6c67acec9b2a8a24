// Package control adapts the dosing step to the simulator and to live
// tuning.
//
// Controllers implement the [sim.Controller] interface:
//
//   - [Safety]: the bounded bang-bang law from [dosing.Step], with its
//     limits guarded by a mutex so a UI or tuner may touch them while the
//     loop runs
//   - [Fixed]: open-loop fallback profile, a baseline for comparisons
//
// # Usage
//
//	ctrl, err := control.NewSafety(limits)
//	s := sim.New(patient, integ, ctrl, est)
//	// Controller.Compute is called once per control period
//
// Safety implements the Configurable contract (GetParams/SetParam) for
// live tuning; tunings that would violate the limit invariants are refused.
package control
