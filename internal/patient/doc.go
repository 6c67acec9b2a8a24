// Package patient provides hemodynamic plant models for closed-loop
// simulation of vasopressor dosing.
//
// Each model implements [sim.System]. The state vector is
//
//	x[0]  mean arterial pressure (mmHg)
//	x[1]  drug effect-site level (mcg/kg/min equivalent)
//
// The effect site follows the infusion rate with a first-order lag and MAP
// relaxes toward baseline plus drug response with time constant Tau.
// Named profiles ([ListProfiles]) cover common clinical pictures.
package patient
