package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/vasoloop/internal/config"
	"github.com/san-kum/vasoloop/internal/control"
	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/experiment"
	"github.com/san-kum/vasoloop/internal/sim"
)

func newSession(t *testing.T) *sim.Session {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Duration = 60
	exp, err := experiment.New(cfg, experiment.NewRegistry())
	require.NoError(t, err)
	s, err := exp.Start()
	require.NoError(t, err)
	return s
}

func key(s string) tea.KeyMsg {
	if s == " " {
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPush(t *testing.T) {
	var buf []float64
	for i := 0; i < historyLen+5; i++ {
		buf = push(buf, float64(i))
	}
	require.Len(t, buf, historyLen)
	assert.Equal(t, 5.0, buf[0])
	assert.Equal(t, float64(historyLen+4), buf[historyLen-1])
}

func TestLiveAppSteps(t *testing.T) {
	m := newLiveApp(newSession(t), "septic")

	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(model)
	assert.Equal(t, 1, m.ticks)

	next, _ = m.Update(key(">"))
	m = next.(model)
	next, _ = m.Update(tickMsg(time.Now()))
	m = next.(model)
	assert.Equal(t, 3, m.ticks)

	assert.Contains(t, m.View(), "MAP vs target")
}

func TestLiveAppKeys(t *testing.T) {
	m := newLiveApp(newSession(t), "septic")

	next, _ := m.Update(key("+"))
	m = next.(model)
	assert.Equal(t, 66.0, m.session.Target())

	next, _ = m.Update(key(" "))
	m = next.(model)
	assert.True(t, m.paused)
	next, _ = m.Update(tickMsg(time.Now()))
	m = next.(model)
	assert.Equal(t, 0, m.ticks)
	assert.Contains(t, m.View(), "PAUSED")

	next, _ = m.Update(key("d"))
	m = next.(model)
	next, _ = m.Update(key("n"))
	m = next.(model)
	assert.Equal(t, 1, m.ticks)
	assert.Equal(t, dosing.ReasonMissing, m.last.Reason)
	assert.Equal(t, 1, m.alarms)

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestLiveAppTunesLimits(t *testing.T) {
	m := newLiveApp(newSession(t), "septic")
	safety, ok := m.session.Controller().(*control.Safety)
	require.True(t, ok)

	next, _ := m.Update(key("]"))
	m = next.(model)
	assert.InDelta(t, 0.025, safety.Limits().MaxDelta, 1e-12)
	assert.Contains(t, m.View(), "max delta 0.025")

	for i := 0; i < 3; i++ {
		next, _ = m.Update(tickMsg(time.Now()))
		m = next.(model)
	}
	next, _ = m.Update(key("r"))
	m = next.(model)
	assert.Equal(t, safety.Limits().FallbackRate, safety.Limits().CurrentRate)

	for i := 0; i < 10; i++ {
		next, _ = m.Update(key("["))
		m = next.(model)
	}
	assert.GreaterOrEqual(t, safety.Limits().MaxDelta, 0.0)
	assert.Contains(t, m.note, "must not be negative")
}

func TestLiveAppFinishes(t *testing.T) {
	m := newLiveApp(newSession(t), "septic")
	m.speed = maxSpeed
	for i := 0; i < 5; i++ {
		next, _ := m.Update(tickMsg(time.Now()))
		m = next.(model)
	}
	assert.True(t, m.done)
	assert.Equal(t, 12, m.ticks)
	assert.Contains(t, m.View(), "DONE")
}

func TestLiveRenderer(t *testing.T) {
	var out bytes.Buffer
	r := NewLiveRenderer(&out, "stable", 10)
	clock := time.Unix(0, 0)
	r.now = func() time.Time { return clock }

	tk := sim.Tick{Time: 5, TrueMAP: 64, Target: 65, Output: dosing.ControlOutput{CommandedRate: 0.1}}
	r.OnTick(tk)
	tk.TrueMAP = 65
	r.OnTick(tk)
	assert.Equal(t, 1, strings.Count(out.String(), clearScreen))

	clock = clock.Add(time.Second)
	tk.Output = dosing.ControlOutput{CommandedRate: 0.05, UseFallback: true, TriggerAlarm: true}
	tk.Reason = dosing.ReasonConfidenceLow
	r.OnTick(tk)
	assert.Equal(t, 2, strings.Count(out.String(), clearScreen))
	assert.Contains(t, out.String(), "FALLBACK")
	assert.Contains(t, out.String(), "MAP (mmHg)")
}
