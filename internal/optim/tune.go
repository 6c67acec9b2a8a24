package optim

import (
	"context"

	"github.com/san-kum/vasoloop/internal/config"
	"github.com/san-kum/vasoloop/internal/experiment"
)

// TuneMaxDelta searches step sizes for cfg and returns the best one.
func TuneMaxDelta(ctx context.Context, cfg *config.Config, reg *experiment.Registry, candidates []float64, penalty float64) (float64, float64, []Trial, error) {
	gs := NewGridSearch([]string{"max_delta"}, [][]float64{candidates})
	best, score, trials, err := gs.Search(ctx, func(params map[string]float64) (*experiment.Experiment, error) {
		c := *cfg
		c.Limits.MaxDelta = params["max_delta"]
		return experiment.New(&c, reg)
	}, TrackingScore(penalty))
	if err != nil {
		return 0, 0, trials, err
	}
	return best["max_delta"], score, trials, nil
}
