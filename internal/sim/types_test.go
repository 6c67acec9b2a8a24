package sim

import (
	"math"
	"testing"

	"github.com/san-kum/vasoloop/internal/dosing"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name  string
		state State
		valid bool
	}{
		{"empty", State{}, true},
		{"normal", State{65.0, 0.1}, true},
		{"with NaN", State{1.0, math.NaN()}, false},
		{"with +Inf", State{1.0, math.Inf(1)}, false},
		{"with -Inf", State{1.0, math.Inf(-1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestState_MAP(t *testing.T) {
	if got := (State{72.5, 0.2}).MAP(); got != 72.5 {
		t.Errorf("MAP() = %v, want 72.5", got)
	}
	if !math.IsNaN(State{}.MAP()) {
		t.Error("MAP() of empty state should be NaN")
	}
}

func TestResultSeries(t *testing.T) {
	r := &Result{Ticks: []Tick{
		{TrueMAP: 60, Output: dosing.ControlOutput{CommandedRate: 0.1}},
		{TrueMAP: 62, Output: dosing.ControlOutput{CommandedRate: 0.2}},
	}}

	rates := r.Rates()
	maps := r.MAPs()
	if len(rates) != 2 || rates[1] != 0.2 {
		t.Errorf("Rates() = %v", rates)
	}
	if len(maps) != 2 || maps[0] != 60 {
		t.Errorf("MAPs() = %v", maps)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Dt <= 0 {
		t.Error("DefaultConfig has invalid Dt")
	}
	if cfg.ControlPeriod < cfg.Dt {
		t.Error("DefaultConfig control period shorter than Dt")
	}
}

func TestSimError(t *testing.T) {
	err := SimError{Time: 1.5, Step: 150, Message: "test error"}
	expected := "step 150 (t=1.5000): test error"
	if err.Error() != expected {
		t.Errorf("SimError.Error() = %q, want %q", err.Error(), expected)
	}
}
