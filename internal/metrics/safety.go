package metrics

import "github.com/san-kum/vasoloop/internal/sim"

// FallbackFraction is the share of ticks that ran the fallback profile.
type FallbackFraction struct {
	fallback int
	samples  int
}

func NewFallbackFraction() *FallbackFraction {
	return &FallbackFraction{}
}

func (f *FallbackFraction) Name() string { return "fallback_fraction" }

func (f *FallbackFraction) Observe(tick sim.Tick) {
	f.samples++
	if tick.Output.UseFallback {
		f.fallback++
	}
}

func (f *FallbackFraction) Value() float64 {
	if f.samples == 0 {
		return 0
	}
	return float64(f.fallback) / float64(f.samples)
}

func (f *FallbackFraction) Reset() {
	f.fallback = 0
	f.samples = 0
}

// AlarmCount counts ticks that raised an alarm.
type AlarmCount struct {
	alarms int
}

func NewAlarmCount() *AlarmCount {
	return &AlarmCount{}
}

func (a *AlarmCount) Name() string { return "alarms" }

func (a *AlarmCount) Observe(tick sim.Tick) {
	if tick.Output.TriggerAlarm {
		a.alarms++
	}
}

func (a *AlarmCount) Value() float64 { return float64(a.alarms) }
func (a *AlarmCount) Reset()         { a.alarms = 0 }

// Defaults is the metric set recorded for every run.
func Defaults(hypotensionThreshold float64) []sim.Metric {
	return []sim.Metric{
		NewTimeInRange(5, 10),
		NewHypotension(hypotensionThreshold),
		NewFallbackFraction(),
		NewAlarmCount(),
		NewControlEffort(),
		NewRateReversals(),
	}
}
