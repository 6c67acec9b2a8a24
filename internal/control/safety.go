package control

import (
	"fmt"
	"sync"

	"github.com/san-kum/vasoloop/internal/dosing"
)

type Safety struct {
	mu     sync.Mutex
	limits dosing.DosingLimits
}

// NewSafety validates limits before taking ownership of a copy.
func NewSafety(limits dosing.DosingLimits) (*Safety, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Safety{limits: limits}, nil
}

func (s *Safety) Compute(in *dosing.ControlInputs, t float64) dosing.ControlOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dosing.Step(&s.limits, in)
}

// Limits returns a snapshot of the current limits and carried rate.
func (s *Safety) Limits() dosing.DosingLimits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limits
}

// Reset sets the carried rate, e.g. after a manual bolus or restart.
func (s *Safety) Reset(rate float64) error {
	return s.update(func(l *dosing.DosingLimits) { l.CurrentRate = rate })
}

func (s *Safety) GetParams() map[string]float64 {
	l := s.Limits()
	return map[string]float64{
		"min_rate":      l.MinRate,
		"max_rate":      l.MaxRate,
		"max_delta":     l.MaxDelta,
		"fallback_rate": l.FallbackRate,
	}
}

func (s *Safety) SetParam(name string, value float64) error {
	var apply func(l *dosing.DosingLimits)
	switch name {
	case "min_rate":
		apply = func(l *dosing.DosingLimits) { l.MinRate = value }
	case "max_rate":
		apply = func(l *dosing.DosingLimits) { l.MaxRate = value }
	case "max_delta":
		apply = func(l *dosing.DosingLimits) { l.MaxDelta = value }
	case "fallback_rate":
		apply = func(l *dosing.DosingLimits) { l.FallbackRate = value }
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return s.update(apply)
}

// update applies fn to a copy and commits it only if the result validates.
func (s *Safety) update(fn func(l *dosing.DosingLimits)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.limits
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.limits = next
	return nil
}
