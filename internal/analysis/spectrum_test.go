package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDominantPeriod_SquareWave(t *testing.T) {
	// A two-up two-down chatter sampled every 5 s has a 20 s period.
	data := make([]float64, 256)
	for i := range data {
		if (i/2)%2 == 0 {
			data[i] = 0.2
		} else {
			data[i] = 0.1
		}
	}

	osc, err := DominantPeriod(data, 5)
	require.NoError(t, err)
	assert.InDelta(t, 20, osc.Period, 0.5)
}

func TestDominantPeriod_Sine(t *testing.T) {
	data := make([]float64, 300)
	for i := range data {
		data[i] = 65 + 3*math.Sin(2*math.Pi*float64(i)/30)
	}

	osc, err := DominantPeriod(data, 1)
	require.NoError(t, err)
	assert.InDelta(t, 30, osc.Period, 1)
}

func TestDominantPeriod_Flat(t *testing.T) {
	data := []float64{1, 1, 1, 1, 1, 1, 1, 1}

	osc, err := DominantPeriod(data, 1)
	require.NoError(t, err)
	assert.True(t, math.IsInf(osc.Period, 1))
}

func TestDominantPeriod_Errors(t *testing.T) {
	_, err := DominantPeriod([]float64{1, 2}, 1)
	assert.ErrorIs(t, err, ErrShortSeries)

	_, err = DominantPeriod([]float64{1, 2, 3, 4}, 0)
	assert.Error(t, err)
}

func TestPowerSpectrum(t *testing.T) {
	assert.Nil(t, PowerSpectrum(nil))
	assert.Len(t, PowerSpectrum(make([]float64, 10)), 5)
}
