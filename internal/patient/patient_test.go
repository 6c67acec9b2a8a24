package patient

import (
	"math"
	"testing"

	"github.com/san-kum/vasoloop/internal/sim"
)

func TestPatientEquilibrium(t *testing.T) {
	p := NewStable()

	dx := p.Derive(p.InitialState(), 0, 0)

	if math.Abs(dx[0]) > 1e-10 {
		t.Errorf("expected no MAP change at untreated baseline, got %f", dx[0])
	}
	if math.Abs(dx[1]) > 1e-10 {
		t.Errorf("expected no effect change at zero rate, got %f", dx[1])
	}
}

func TestPatientRespondsToInfusion(t *testing.T) {
	p := NewSeptic()

	dx := p.Derive(sim.State{55, 0}, 0.2, 0)
	if dx[1] <= 0 {
		t.Errorf("effect site should rise under infusion, got %f", dx[1])
	}

	dx = p.Derive(sim.State{55, 0.2}, 0.2, 0)
	if dx[0] <= 0 {
		t.Errorf("MAP should rise with drug effect, got %f", dx[0])
	}
}

func TestPatientEpisode(t *testing.T) {
	p := NewSeptic()

	before := p.BaselineAt(p.DropAt - 1)
	during := p.BaselineAt(p.DropAt + 1)
	after := p.BaselineAt(p.DropAt + p.DropFor + 1)

	if before-during < p.DropMMHg-0.01 {
		t.Errorf("expected a %.0f mmHg drop, before %.2f during %.2f", p.DropMMHg, before, during)
	}
	if math.Abs(after-before) > 1 {
		t.Errorf("baseline should recover after the episode, before %.2f after %.2f", before, after)
	}
}

func TestRateFor(t *testing.T) {
	p := NewStable()
	p.Baseline = 55
	p.Gain = 100

	if got := p.RateFor(65); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("RateFor(65) = %f, want 0.1", got)
	}

	p.Gain = 0
	if got := p.RateFor(65); got != 0 {
		t.Errorf("RateFor with zero gain = %f, want 0", got)
	}
}

func TestProfiles(t *testing.T) {
	names := ListProfiles()
	if len(names) != 4 {
		t.Fatalf("expected 4 profiles, got %v", names)
	}
	for _, name := range names {
		p, err := NewProfile(name)
		if err != nil {
			t.Fatalf("profile %s: %v", name, err)
		}
		if p.StateDim() != 2 {
			t.Errorf("profile %s: expected state dim 2", name)
		}
	}

	if _, err := NewProfile("nonexistent"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestSetParam(t *testing.T) {
	p := NewStable()

	if err := p.SetParam("gain", 80); err != nil {
		t.Fatal(err)
	}
	if p.GetParams()["gain"] != 80 {
		t.Error("gain not applied")
	}
	if err := p.SetParam("tau", 0); err == nil {
		t.Error("expected error for non-positive tau")
	}
	if err := p.SetParam("bogus", 1); err == nil {
		t.Error("expected error for unknown param")
	}
}
