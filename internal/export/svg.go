// Package export renders stored runs as standalone SVG charts.
package export

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/san-kum/vasoloop/internal/sim"
)

// Point is one sample of a series.
type Point struct {
	X, Y float64
}

// Series is a named polyline.
type Series struct {
	Name   string
	Color  string
	Points []Point
}

const (
	panelGap = 24
	margin   = 40
)

// PathToSVG returns the d attribute of a polyline scaled into the box
// [0,width]x[0,height] over the given bounds. Non-finite points break the
// line.
func PathToSVG(points []Point, minX, maxX, minY, maxY float64, width, height int) string {
	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}

	var sb strings.Builder
	pen := false
	for _, p := range points {
		if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			pen = false
			continue
		}
		x := (p.X - minX) / rangeX * float64(width)
		y := float64(height) - (p.Y-minY)/rangeY*float64(height)
		if !pen {
			fmt.Fprintf(&sb, "M%.1f,%.1f", x, y)
			pen = true
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	return sb.String()
}

// bounds returns the finite Y range of all series with 10% padding.
func bounds(series ...Series) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, p := range s.Points {
			if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
				continue
			}
			lo = math.Min(lo, p.Y)
			hi = math.Max(hi, p.Y)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}

// RunSeries splits ticks into true MAP, predicted MAP, target and rate
// series. Missing samples leave a gap in the predicted line.
func RunSeries(ticks []sim.Tick) (pressure []Series, rate Series) {
	truth := Series{Name: "true MAP", Color: "#4fc3f7"}
	pred := Series{Name: "predicted MAP", Color: "#ffb74d"}
	target := Series{Name: "target", Color: "#81c784"}
	rate = Series{Name: "rate", Color: "#e57373"}

	for _, tk := range ticks {
		truth.Points = append(truth.Points, Point{tk.Time, tk.TrueMAP})
		target.Points = append(target.Points, Point{tk.Time, tk.Target})
		p := math.NaN()
		if tk.Inputs != nil {
			p = tk.Inputs.PredictedMAP
		}
		pred.Points = append(pred.Points, Point{tk.Time, p})
		rate.Points = append(rate.Points, Point{tk.Time, tk.Output.CommandedRate})
	}
	return []Series{truth, pred, target}, rate
}

// RunToSVG writes a two-panel chart: pressures on top, commanded rate
// below, with fallback ticks shaded.
func RunToSVG(w io.Writer, title string, ticks []sim.Tick, width, height int) error {
	if len(ticks) < 2 {
		return fmt.Errorf("need at least 2 ticks to plot, got %d", len(ticks))
	}

	pressure, rate := RunSeries(ticks)
	minX, maxX := ticks[0].Time, ticks[len(ticks)-1].Time
	plotW := width - 2*margin
	panelH := (height - 2*margin - panelGap) / 2
	if plotW <= 0 || panelH <= 0 {
		return fmt.Errorf("chart too small: %dx%d", width, height)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<text x="%d" y="%d" fill="#dddddd" font-family="monospace" font-size="14">%s</text>
`, width, height, width, height, margin, margin/2+6, escape(title))

	rangeX := maxX - minX
	if rangeX == 0 {
		rangeX = 1
	}
	step := float64(plotW) / float64(len(ticks)-1)
	for i, tk := range ticks {
		if !tk.Output.UseFallback {
			continue
		}
		x := margin + (tk.Time-minX)/rangeX*float64(plotW) - step/2
		fmt.Fprintf(&sb, `<rect x="%.1f" y="%d" width="%.1f" height="%d" fill="#b71c1c" fill-opacity="0.25"><title>tick %d fallback</title></rect>
`, x, margin, step, 2*panelH+panelGap, i)
	}

	lo, hi := bounds(pressure...)
	writePanel(&sb, pressure, minX, maxX, lo, hi, margin, margin, plotW, panelH)

	lo, hi = bounds(rate)
	writePanel(&sb, []Series{rate}, minX, maxX, lo, hi, margin, margin+panelH+panelGap, plotW, panelH)

	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func writePanel(sb *strings.Builder, series []Series, minX, maxX, lo, hi float64, x, y, w, h int) {
	fmt.Fprintf(sb, `<g transform="translate(%d,%d)">
<rect width="%d" height="%d" fill="none" stroke="#444444"/>
<text x="-4" y="10" fill="#888888" font-family="monospace" font-size="10" text-anchor="end">%.3g</text>
<text x="-4" y="%d" fill="#888888" font-family="monospace" font-size="10" text-anchor="end">%.3g</text>
`, x, y, w, h, hi, h, lo)
	for i, s := range series {
		fmt.Fprintf(sb, `<path fill="none" stroke="%s" stroke-width="1.5" d="%s"/>
<text x="%d" y="%d" fill="%s" font-family="monospace" font-size="10">%s</text>
`, s.Color, PathToSVG(s.Points, minX, maxX, lo, hi, w, h), 6+i*110, h-6, s.Color, escape(s.Name))
	}
	sb.WriteString("</g>\n")
}

var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escape(s string) string {
	return escaper.Replace(s)
}
