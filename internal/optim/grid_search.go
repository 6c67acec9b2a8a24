package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"maps"

	"github.com/san-kum/vasoloop/internal/experiment"
	"github.com/san-kum/vasoloop/internal/sim"
)

var ErrNoCandidate = errors.New("optim: no candidate completed")

// Score rates a finished run; higher is better.
type Score func(res *sim.Result) float64

// TrackingScore rewards time in range and charges penalty per rate
// reversal per tick.
func TrackingScore(penalty float64) Score {
	return func(res *sim.Result) float64 {
		if len(res.Ticks) == 0 {
			return math.Inf(-1)
		}
		chatter := res.Metrics["rate_reversals"] / float64(len(res.Ticks))
		return res.Metrics["time_in_range"] - penalty*chatter
	}
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Score  float64
	Err    error
}

// Search evaluates every grid point and returns the best parameters, their
// score and every trial in grid order.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	score Score,
) (map[string]float64, float64, []Trial, error) {
	var trials []Trial
	if err := g.searchRecursive(ctx, 0, make(map[string]float64), buildExperiment, score, &trials); err != nil {
		return nil, 0, trials, err
	}

	best := math.Inf(-1)
	var bestParams map[string]float64
	var errs []error
	for _, tr := range trials {
		if tr.Err != nil {
			errs = append(errs, tr.Err)
			continue
		}
		if bestParams == nil || tr.Score > best {
			best = tr.Score
			bestParams = tr.Params
		}
	}
	if bestParams == nil {
		return nil, 0, trials, errors.Join(append([]error{ErrNoCandidate}, errs...)...)
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	buildExperiment func(map[string]float64) (*experiment.Experiment, error),
	score Score,
	trials *[]Trial,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth == len(g.paramNames) {
		tr := Trial{Params: maps.Clone(current)}
		exp, err := buildExperiment(current)
		if err != nil {
			tr.Err = fmt.Errorf("params %v: %w", current, err)
			*trials = append(*trials, tr)
			return nil
		}

		result, err := exp.Run(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tr.Err = fmt.Errorf("params %v: %w", current, err)
		} else {
			tr.Score = score(result)
		}
		*trials = append(*trials, tr)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := maps.Clone(current)
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, buildExperiment, score, trials); err != nil {
			return err
		}
	}
	return nil
}
