package metrics

import (
	"testing"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/sim"
	"github.com/stretchr/testify/assert"
)

func tick(mapv, rate float64, fallback bool) sim.Tick {
	return sim.Tick{
		TrueMAP: mapv,
		Target:  65,
		Output:  dosing.ControlOutput{CommandedRate: rate, UseFallback: fallback, TriggerAlarm: fallback},
	}
}

func observe(m sim.Metric, ticks ...sim.Tick) float64 {
	m.Reset()
	for _, tk := range ticks {
		m.Observe(tk)
	}
	return m.Value()
}

func TestTimeInRange(t *testing.T) {
	m := NewTimeInRange(5, 10)

	got := observe(m, tick(59, 0, false), tick(60, 0, false), tick(75, 0, false), tick(76, 0, false))

	assert.Equal(t, 0.5, got)
	m.Reset()
	assert.Equal(t, 0.0, m.Value())
}

func TestHypotension(t *testing.T) {
	got := observe(NewHypotension(65), tick(64.9, 0, false), tick(65, 0, false), tick(50, 0, false), tick(80, 0, false))
	assert.Equal(t, 0.5, got)
}

func TestFallbackAndAlarms(t *testing.T) {
	ticks := []sim.Tick{tick(60, 0.1, false), tick(60, 0.05, true), tick(60, 0.05, true), tick(60, 0.2, false)}

	assert.Equal(t, 0.5, observe(NewFallbackFraction(), ticks...))
	assert.Equal(t, 2.0, observe(NewAlarmCount(), ticks...))
}

func TestControlEffort(t *testing.T) {
	got := observe(NewControlEffort(), tick(60, 0.1, false), tick(60, 0.3, false))
	assert.InDelta(t, 0.2, got, 1e-12)
	assert.Equal(t, 0.0, NewControlEffort().Value())
}

func TestRateReversals(t *testing.T) {
	rates := []float64{0.1, 0.2, 0.3, 0.2, 0.2, 0.3, 0.4, 0.3}
	ticks := make([]sim.Tick, len(rates))
	for i, r := range rates {
		ticks[i] = tick(60, r, false)
	}

	// up, up, down (1), flat, up (2), up, down (3)
	assert.Equal(t, 3.0, observe(NewRateReversals(), ticks...))
}

func TestDefaults(t *testing.T) {
	names := map[string]bool{}
	for _, m := range Defaults(65) {
		names[m.Name()] = true
	}
	for _, want := range []string{"time_in_range", "hypotension", "fallback_fraction", "alarms", "control_effort", "rate_reversals"} {
		assert.True(t, names[want], want)
	}
}
