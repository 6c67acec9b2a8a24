package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/vasoloop/internal/sim"
)

const (
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer is a sim.Observer that redraws a MAP trace while a batch
// run executes. Frames are throttled to frameRate per second.
type LiveRenderer struct {
	out       io.Writer
	profile   string
	frameRate int
	lastFrame time.Time
	now       func() time.Time

	maps  []float64
	rates []float64
}

func NewLiveRenderer(out io.Writer, profile string, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 10
	}
	return &LiveRenderer{
		out:       out,
		profile:   profile,
		frameRate: frameRate,
		now:       time.Now,
		maps:      make([]float64, 0, historyLen),
		rates:     make([]float64, 0, historyLen),
	}
}

func (r *LiveRenderer) OnTick(tk sim.Tick) {
	r.maps = push(r.maps, tk.TrueMAP)
	r.rates = push(r.rates, tk.Output.CommandedRate)

	now := r.now()
	if now.Sub(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = now
	r.render(tk)
}

func (r *LiveRenderer) render(tk sim.Tick) {
	var b strings.Builder
	b.WriteString(clearScreen)
	b.WriteString(fmt.Sprintf("  %s  t=%.0fs  target=%.0f\n", r.profile, tk.Time, tk.Target))

	if len(r.maps) > 1 {
		b.WriteString(asciigraph.Plot(r.maps,
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Precision(1),
			asciigraph.Caption("MAP (mmHg)"),
		))
		b.WriteString("\n")
	}

	mode := "tracking"
	if tk.Output.UseFallback {
		mode = "FALLBACK " + tk.Reason.String()
	}
	b.WriteString(fmt.Sprintf("  map=%.1f  rate=%.3f  %s\n", tk.TrueMAP, tk.Output.CommandedRate, mode))

	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
