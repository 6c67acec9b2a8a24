package dosing

import (
	"errors"
	"fmt"
)

// Configuration errors reported by Validate. Step never returns these.
var (
	// ErrRateBounds indicates min_rate > max_rate or a non-finite limit.
	ErrRateBounds = errors.New("dosing: invalid rate bounds")

	// ErrNegativeDelta indicates a negative max_delta.
	ErrNegativeDelta = errors.New("dosing: max delta must not be negative")

	// ErrFallbackOutOfBounds indicates a fallback rate outside [min_rate, max_rate].
	ErrFallbackOutOfBounds = errors.New("dosing: fallback rate outside rate bounds")

	// ErrCurrentOutOfBounds indicates a starting rate outside [0, max_rate].
	ErrCurrentOutOfBounds = errors.New("dosing: current rate outside rate bounds")
)

// Validate checks the static configuration invariants that Step relies on
// but does not enforce. All violations are reported together.
func (l *DosingLimits) Validate() error {
	var errs []error

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"current_rate", l.CurrentRate},
		{"min_rate", l.MinRate},
		{"max_rate", l.MaxRate},
		{"max_delta", l.MaxDelta},
		{"fallback_rate", l.FallbackRate},
	} {
		if !finite(f.v) {
			errs = append(errs, fmt.Errorf("%w: %s is %v", ErrRateBounds, f.name, f.v))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if l.MinRate < 0 || l.MinRate > l.MaxRate {
		errs = append(errs, fmt.Errorf("%w: min %.4f, max %.4f", ErrRateBounds, l.MinRate, l.MaxRate))
	}
	if l.MaxDelta < 0 {
		errs = append(errs, fmt.Errorf("%w: got %.4f", ErrNegativeDelta, l.MaxDelta))
	}
	if l.FallbackRate < l.MinRate || l.FallbackRate > l.MaxRate {
		errs = append(errs, fmt.Errorf("%w: %.4f not in [%.4f, %.4f]", ErrFallbackOutOfBounds, l.FallbackRate, l.MinRate, l.MaxRate))
	}
	// A pump may boot stopped below min_rate; the first step floors it.
	if l.CurrentRate < 0 || l.CurrentRate > l.MaxRate {
		errs = append(errs, fmt.Errorf("%w: %.4f not in [0, %.4f]", ErrCurrentOutOfBounds, l.CurrentRate, l.MaxRate))
	}

	return errors.Join(errs...)
}
