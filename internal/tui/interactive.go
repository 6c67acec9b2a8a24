package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/sim"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))

	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 1)
)

const (
	historyLen = 120
	maxSpeed   = 32
	deltaStep  = 0.005
)

// tunable is a controller whose dosing limits can change mid-run.
type tunable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
	Reset(rate float64) error
}

type model struct {
	session *sim.Session
	profile string

	paused bool
	done   bool
	err    error
	speed  int

	last      sim.Tick
	ticks     int
	fallbacks int
	alarms    int
	maps      []float64
	targets   []float64
	rates     []float64

	note string

	width  int
	height int
}

func newLiveApp(session *sim.Session, profile string) model {
	return model{
		session: session,
		profile: profile,
		speed:   1,
		maps:    make([]float64, 0, historyLen),
		targets: make([]float64, 0, historyLen),
		rates:   make([]float64, 0, historyLen),
		width:   80,
		height:  24,
	}
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.paused && !m.done {
			for i := 0; i < m.speed; i++ {
				if !m.step() {
					break
				}
			}
		}
		return m, tick()
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ":
		m.paused = !m.paused
	case "+", "=":
		m.session.SetTarget(m.session.Target() + 1)
	case "-", "_":
		m.session.SetTarget(m.session.Target() - 1)
	case "d":
		m.session.ForceDropout()
	case ">", ".":
		if m.speed < maxSpeed {
			m.speed *= 2
		}
	case "<", ",":
		if m.speed > 1 {
			m.speed /= 2
		}
	case "n":
		if m.paused && !m.done {
			m.step()
		}
	case "]":
		m.tune(deltaStep)
	case "[":
		m.tune(-deltaStep)
	case "r":
		m.resetRate()
	}
	return m, nil
}

func (m *model) tune(by float64) {
	c, ok := m.session.Controller().(tunable)
	if !ok {
		m.note = "controller has no tunable limits"
		return
	}
	next := c.GetParams()["max_delta"] + by
	if err := c.SetParam("max_delta", next); err != nil {
		m.note = err.Error()
		return
	}
	m.note = fmt.Sprintf("max delta %.3f", next)
}

// resetRate restarts tracking from the fallback rate.
func (m *model) resetRate() {
	c, ok := m.session.Controller().(tunable)
	if !ok {
		m.note = "controller has no tunable limits"
		return
	}
	rate := c.GetParams()["fallback_rate"]
	if err := c.Reset(rate); err != nil {
		m.note = err.Error()
		return
	}
	m.note = fmt.Sprintf("rate reset to %.3f", rate)
}

// step advances one control tick and reports whether another may follow.
func (m *model) step() bool {
	if m.session.Done() {
		m.done = true
		return false
	}
	tk, err := m.session.Next()
	if err != nil {
		m.err = err
		m.done = true
		return false
	}

	m.last = tk
	m.ticks++
	if tk.Output.UseFallback {
		m.fallbacks++
	}
	if tk.Output.TriggerAlarm {
		m.alarms++
	}
	m.maps = push(m.maps, tk.TrueMAP)
	m.targets = push(m.targets, tk.Target)
	m.rates = push(m.rates, tk.Output.CommandedRate)
	return true
}

func push(buf []float64, v float64) []float64 {
	if len(buf) == historyLen {
		copy(buf, buf[1:])
		buf = buf[:historyLen-1]
	}
	return append(buf, v)
}

func (m model) View() string {
	var b strings.Builder

	status := green.Render("TRACKING")
	switch {
	case m.err != nil:
		status = red.Render("ERROR")
	case m.done:
		status = dim.Render("DONE")
	case m.paused:
		status = yellow.Render("PAUSED")
	case m.last.Output.Mode() == dosing.ModeFallback:
		status = red.Render("FALLBACK")
	}

	b.WriteString(fmt.Sprintf("\n   %s  %s  %s  %s\n\n",
		cyan.Render("vasoloop"),
		white.Render(m.profile),
		status,
		dim.Render(fmt.Sprintf("t=%.0fs  x%d", m.session.Time(), m.speed)),
	))

	graphWidth := m.width - 20
	if graphWidth < 20 {
		graphWidth = 20
	}
	if graphWidth > historyLen {
		graphWidth = historyLen
	}

	if len(m.maps) > 1 {
		chart := asciigraph.PlotMany([][]float64{m.maps, m.targets},
			asciigraph.Height(8),
			asciigraph.Width(graphWidth),
			asciigraph.Precision(1),
			asciigraph.SeriesColors(asciigraph.Green, asciigraph.Yellow),
			asciigraph.Caption("MAP vs target (mmHg)"),
		)
		b.WriteString(panel.Render(chart) + "\n")

		chart = asciigraph.Plot(m.rates,
			asciigraph.Height(5),
			asciigraph.Width(graphWidth),
			asciigraph.Precision(3),
			asciigraph.Caption("rate (mcg/kg/min)"),
		)
		b.WriteString(panel.Render(chart) + "\n")
	} else {
		b.WriteString(dim.Render("   waiting for samples...") + "\n")
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("   %s %s   %s %s   %s %s\n",
		dim.Render("MAP"), white.Render(fmt.Sprintf("%.1f", m.last.TrueMAP)),
		dim.Render("target"), white.Render(fmt.Sprintf("%.0f", m.session.Target())),
		dim.Render("rate"), magenta.Render(fmt.Sprintf("%.3f", m.last.Output.CommandedRate)),
	))

	reason := "-"
	if m.last.Reason != dosing.ReasonNone {
		reason = m.last.Reason.String()
	}
	b.WriteString(fmt.Sprintf("   %s %d   %s %d   %s %s\n",
		dim.Render("fallbacks"), m.fallbacks,
		dim.Render("alarms"), m.alarms,
		dim.Render("last reason"), yellow.Render(reason),
	))
	if m.note != "" {
		b.WriteString("   " + cyan.Render(m.note) + "\n")
	}
	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}

	b.WriteString("\n" + dim.Render("   space pause  n step  +/- target  d dropout  [/] max delta  r reset rate  </> speed  q quit") + "\n")
	return b.String()
}

// RunLive runs the live view until the user quits.
func RunLive(session *sim.Session, profile string) error {
	p := tea.NewProgram(newLiveApp(session, profile), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
