package analysis

import (
	"errors"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// ErrShortSeries is returned when a series is too short to analyse.
var ErrShortSeries = errors.New("analysis: series too short")

// PowerSpectrum returns the one-sided magnitude spectrum of data after
// removing its mean. Bin k corresponds to k/(len(data)*dt) Hz.
func PowerSpectrum(data []float64) []float64 {
	if len(data) == 0 {
		return nil
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(len(data))

	centred := make([]float64, len(data))
	for i, v := range data {
		centred[i] = v - mean
	}

	spec := fft.FFTReal(centred)
	ps := make([]float64, len(spec)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(spec[i])
	}
	return ps
}

// Oscillation describes the strongest periodic component of a series.
type Oscillation struct {
	Period    float64 // seconds
	Frequency float64 // Hz
	Power     float64
	Bin       int
}

// DominantPeriod finds the limit cycle a fixed-step controller settles
// into. dt is the sample spacing in seconds.
func DominantPeriod(data []float64, dt float64) (Oscillation, error) {
	if len(data) < 4 {
		return Oscillation{}, ErrShortSeries
	}
	if dt <= 0 {
		return Oscillation{}, errors.New("analysis: dt must be positive")
	}

	ps := PowerSpectrum(data)
	best := 1
	for i := 2; i < len(ps); i++ {
		if ps[i] > ps[best] {
			best = i
		}
	}
	if ps[best] == 0 {
		return Oscillation{Period: math.Inf(1)}, nil
	}

	freq := float64(best) / (float64(len(data)) * dt)
	return Oscillation{
		Period:    1 / freq,
		Frequency: freq,
		Power:     ps[best],
		Bin:       best,
	}, nil
}
