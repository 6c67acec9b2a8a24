package export

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/sim"
)

func TestPathToSVG(t *testing.T) {
	pts := []Point{{0, 0}, {1, 1}, {2, math.NaN()}, {3, 0}}
	got := PathToSVG(pts, 0, 3, 0, 1, 300, 100)

	if !strings.HasPrefix(got, "M0.0,100.0 L100.0,0.0") {
		t.Errorf("unexpected path start: %q", got)
	}
	if strings.Count(got, "M") != 2 {
		t.Errorf("NaN should break the line: %q", got)
	}
}

func ticks() []sim.Tick {
	in := &dosing.ControlInputs{PredictedMAP: 60, TargetMAP: 65, Confidence: 0.9}
	return []sim.Tick{
		{Time: 0, TrueMAP: 58, Target: 65, Inputs: in, Output: dosing.ControlOutput{CommandedRate: 0.07}},
		{Time: 5, TrueMAP: 60, Target: 65, Output: dosing.ControlOutput{CommandedRate: 0.05, UseFallback: true, TriggerAlarm: true}},
		{Time: 10, TrueMAP: 62, Target: 65, Inputs: in, Output: dosing.ControlOutput{CommandedRate: 0.09}},
	}
}

func TestRunSeries(t *testing.T) {
	pressure, rate := RunSeries(ticks())
	if len(pressure) != 3 {
		t.Fatalf("expected 3 pressure series, got %d", len(pressure))
	}
	if !math.IsNaN(pressure[1].Points[1].Y) {
		t.Error("missing sample should be NaN in predicted series")
	}
	if rate.Points[2].Y != 0.09 {
		t.Errorf("rate point: %v", rate.Points[2])
	}
}

func TestRunToSVG(t *testing.T) {
	var buf bytes.Buffer
	if err := RunToSVG(&buf, "septic <norepinephrine>", ticks(), 800, 400); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "<svg") || !strings.HasSuffix(out, "</svg>\n") {
		t.Error("not an svg document")
	}
	if !strings.Contains(out, "septic &lt;norepinephrine&gt;") {
		t.Error("title not escaped")
	}
	if strings.Count(out, "fallback</title>") != 1 {
		t.Error("expected one shaded fallback tick")
	}
	if strings.Count(out, "<path") != 4 {
		t.Errorf("expected 4 paths, got %d", strings.Count(out, "<path"))
	}
}

func TestRunToSVGSingleInstant(t *testing.T) {
	tks := ticks()
	for i := range tks {
		tks[i].Time = 0
	}

	var buf bytes.Buffer
	if err := RunToSVG(&buf, "x", tks, 800, 400); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "NaN") {
		t.Error("chart contains NaN coordinates")
	}
}

func TestRunToSVGErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := RunToSVG(&buf, "x", ticks()[:1], 800, 400); err == nil {
		t.Error("expected error for a single tick")
	}
	if err := RunToSVG(&buf, "x", ticks(), 60, 60); err == nil {
		t.Error("expected error for a tiny chart")
	}
}
