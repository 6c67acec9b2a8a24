package control

import (
	"sync"
	"testing"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() dosing.DosingLimits {
	return dosing.DosingLimits{CurrentRate: 0.05, MinRate: 0.02, MaxRate: 0.9, MaxDelta: 0.1, FallbackRate: 0.05}
}

func below() *dosing.ControlInputs {
	return &dosing.ControlInputs{PredictedMAP: 55, TargetMAP: 65, Confidence: 0.8}
}

func TestNewSafetyRejectsBadLimits(t *testing.T) {
	l := testLimits()
	l.MinRate, l.MaxRate = 1, 0.5

	_, err := NewSafety(l)
	assert.ErrorIs(t, err, dosing.ErrRateBounds)
}

func TestSafetyCompute(t *testing.T) {
	s, err := NewSafety(testLimits())
	require.NoError(t, err)

	out := s.Compute(below(), 0)
	assert.InDelta(t, 0.15, out.CommandedRate, 1e-12)
	out = s.Compute(below(), 5)
	assert.InDelta(t, 0.25, out.CommandedRate, 1e-12)

	out = s.Compute(nil, 10)
	assert.True(t, out.UseFallback)
	assert.InDelta(t, 0.25, s.Limits().CurrentRate, 1e-12)
}

func TestSafetyConcurrentCallersAreSerialized(t *testing.T) {
	l := testLimits()
	l.MaxDelta = 0.001
	l.CurrentRate = 0.02
	s, err := NewSafety(l)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Compute(below(), 0)
			}
		}()
	}
	wg.Wait()

	assert.InDelta(t, 0.02+400*0.001, s.Limits().CurrentRate, 1e-9)
}

func TestSafetySetParam(t *testing.T) {
	s, err := NewSafety(testLimits())
	require.NoError(t, err)

	require.NoError(t, s.SetParam("max_delta", 0.02))
	assert.Equal(t, 0.02, s.GetParams()["max_delta"])

	err = s.SetParam("max_rate", 0.01)
	assert.ErrorIs(t, err, dosing.ErrRateBounds)
	assert.Equal(t, 0.9, s.GetParams()["max_rate"])

	assert.ErrorIs(t, s.SetParam("fallback_rate", 2), dosing.ErrFallbackOutOfBounds)
	assert.Error(t, s.SetParam("kp", 1))
}

func TestSafetyReset(t *testing.T) {
	s, err := NewSafety(testLimits())
	require.NoError(t, err)

	require.NoError(t, s.Reset(0.4))
	assert.Equal(t, 0.4, s.Limits().CurrentRate)
	assert.ErrorIs(t, s.Reset(5), dosing.ErrCurrentOutOfBounds)
}

func TestFixed(t *testing.T) {
	f := NewFixed(0.07)

	out := f.Compute(below(), 0)
	assert.Equal(t, 0.07, out.CommandedRate)
	assert.True(t, out.UseFallback)
	assert.False(t, out.TriggerAlarm)

	out = f.Compute(nil, 0)
	assert.Equal(t, 0.07, out.CommandedRate)
}
