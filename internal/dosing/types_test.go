package dosing

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputReason(t *testing.T) {
	tests := []struct {
		name string
		in   *ControlInputs
		want RejectReason
	}{
		{"nil", nil, ReasonMissing},
		{"trusted", &ControlInputs{PredictedMAP: 60, TargetMAP: 65, Confidence: 0.9}, ReasonNone},
		{"confidence NaN first", &ControlInputs{PredictedMAP: math.NaN(), TargetMAP: 65, Confidence: math.NaN()}, ReasonConfidenceNotFinite},
		{"low", &ControlInputs{PredictedMAP: 60, TargetMAP: 65, Confidence: 0.3}, ReasonConfidenceLow},
		{"high", &ControlInputs{PredictedMAP: 60, TargetMAP: 65, Confidence: 1.01}, ReasonConfidenceHigh},
		{"predicted", &ControlInputs{PredictedMAP: math.Inf(1), TargetMAP: 65, Confidence: 0.9}, ReasonPredictedNotFinite},
		{"target", &ControlInputs{PredictedMAP: 60, TargetMAP: math.NaN(), Confidence: 0.9}, ReasonTargetNotFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InputReason(tt.in))
			if tt.in != nil {
				assert.Equal(t, tt.want == ReasonNone, tt.in.Trusted())
			}
		})
	}
}

func TestRejectReasonString(t *testing.T) {
	assert.Equal(t, "missing sample", ReasonMissing.String())
	assert.Equal(t, "unknown", RejectReason(99).String())
	assert.Equal(t, "fallback", ModeFallback.String())
}

func TestValidate(t *testing.T) {
	valid := baseLimits()
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(l *DosingLimits)
		want   error
	}{
		{"inverted bounds", func(l *DosingLimits) { l.MinRate, l.MaxRate = 0.9, 0.1 }, ErrRateBounds},
		{"negative min", func(l *DosingLimits) { l.MinRate = -0.1 }, ErrRateBounds},
		{"NaN max", func(l *DosingLimits) { l.MaxRate = math.NaN() }, ErrRateBounds},
		{"negative delta", func(l *DosingLimits) { l.MaxDelta = -0.01 }, ErrNegativeDelta},
		{"fallback above max", func(l *DosingLimits) { l.FallbackRate = 0.95 }, ErrFallbackOutOfBounds},
		{"fallback below min", func(l *DosingLimits) { l.FallbackRate = 0.01 }, ErrFallbackOutOfBounds},
		{"current above max", func(l *DosingLimits) { l.CurrentRate = 2 }, ErrCurrentOutOfBounds},
		{"negative current", func(l *DosingLimits) { l.CurrentRate = -0.01 }, ErrCurrentOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := baseLimits()
			tt.mutate(&l)
			err := l.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestValidate_AcceptsStoppedPump(t *testing.T) {
	l := baseLimits()
	l.CurrentRate = 0

	require.NoError(t, l.Validate())

	out := Step(&l, &ControlInputs{PredictedMAP: 70, TargetMAP: 65, Confidence: 0.9})
	assert.Equal(t, l.MinRate, out.CommandedRate)
}

func TestValidate_NonFiniteOrderIsStable(t *testing.T) {
	l := DosingLimits{
		CurrentRate:  math.NaN(),
		MinRate:      math.Inf(-1),
		MaxRate:      math.Inf(1),
		MaxDelta:     math.NaN(),
		FallbackRate: math.NaN(),
	}

	want := l.Validate().Error()
	for i := 0; i < 20; i++ {
		require.Equal(t, want, l.Validate().Error())
	}
	assert.True(t, strings.HasPrefix(want, "dosing: invalid rate bounds: current_rate is NaN"))
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	l := DosingLimits{CurrentRate: 5, MinRate: 0.1, MaxRate: 1, MaxDelta: -1, FallbackRate: 3}

	err := l.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNegativeDelta)
	assert.ErrorIs(t, err, ErrFallbackOutOfBounds)
	assert.ErrorIs(t, err, ErrCurrentOutOfBounds)
	assert.NotErrorIs(t, err, ErrRateBounds)
}
