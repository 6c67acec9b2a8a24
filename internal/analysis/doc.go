// Package analysis inspects recorded runs, chiefly the oscillation a
// bang-bang dosing law sustains around its target.
package analysis
