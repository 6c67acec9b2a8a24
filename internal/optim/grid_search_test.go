package optim

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/vasoloop/internal/config"
	"github.com/san-kum/vasoloop/internal/experiment"
	"github.com/san-kum/vasoloop/internal/sim"
)

func TestTrackingScore(t *testing.T) {
	res := &sim.Result{
		Ticks:   make([]sim.Tick, 10),
		Metrics: map[string]float64{"time_in_range": 0.8, "rate_reversals": 5},
	}
	assert.InDelta(t, 0.8-0.1*0.5, TrackingScore(0.1)(res), 1e-12)
	assert.Equal(t, 0.8, TrackingScore(0)(res))
}

func shortConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Duration = 600
	return cfg
}

func TestGridSearchVisitsEveryPoint(t *testing.T) {
	reg := experiment.NewRegistry()
	gs := NewGridSearch(
		[]string{"max_delta", "target"},
		[][]float64{{0.01, 0.02}, {65, 70, 75}},
	)

	best, _, trials, err := gs.Search(context.Background(), func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := shortConfig()
		cfg.Duration = 60
		cfg.Limits.MaxDelta = params["max_delta"]
		cfg.TargetMAP = params["target"]
		return experiment.New(cfg, reg)
	}, TrackingScore(0))

	require.NoError(t, err)
	require.Len(t, trials, 6)
	assert.Equal(t, map[string]float64{"max_delta": 0.01, "target": 65}, trials[0].Params)
	assert.Contains(t, best, "max_delta")
	assert.Contains(t, best, "target")
}

func TestGridSearchSkipsFailedCandidates(t *testing.T) {
	reg := experiment.NewRegistry()
	gs := NewGridSearch([]string{"max_delta"}, [][]float64{{-1, 0.02}})

	best, _, trials, err := gs.Search(context.Background(), func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := shortConfig()
		cfg.Limits.MaxDelta = params["max_delta"]
		return experiment.New(cfg, reg)
	}, TrackingScore(0.1))

	require.NoError(t, err)
	require.Len(t, trials, 2)
	assert.Error(t, trials[0].Err)
	assert.Equal(t, 0.02, best["max_delta"])
}

func TestGridSearchNoCandidate(t *testing.T) {
	gs := NewGridSearch([]string{"max_delta"}, [][]float64{{0.01}})
	_, _, _, err := gs.Search(context.Background(), func(map[string]float64) (*experiment.Experiment, error) {
		return nil, errors.New("boom")
	}, TrackingScore(0))
	require.ErrorIs(t, err, ErrNoCandidate)
}

func TestGridSearchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gs := NewGridSearch([]string{"max_delta"}, [][]float64{{0.01, 0.02}})
	_, _, _, err := gs.Search(ctx, func(map[string]float64) (*experiment.Experiment, error) {
		t.Fatal("should not build after cancel")
		return nil, nil
	}, TrackingScore(0))
	require.ErrorIs(t, err, context.Canceled)
}

func TestTuneMaxDelta(t *testing.T) {
	candidates := []float64{0.005, 0.01, 0.02, 0.04}
	best, score, trials, err := TuneMaxDelta(context.Background(), shortConfig(), experiment.NewRegistry(), candidates, 0.5)
	require.NoError(t, err)
	assert.Contains(t, candidates, best)
	assert.Len(t, trials, len(candidates))
	for _, tr := range trials {
		assert.LessOrEqual(t, tr.Score, score)
	}
}
