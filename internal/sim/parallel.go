package sim

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Factory builds an independent simulator for one ensemble member. Each
// member needs its own controller state and estimator random source.
type Factory func(seed int64) (*Simulator, error)

// Ensemble runs the same scenario over consecutive seeds.
type Ensemble struct {
	build     Factory
	numRuns   int
	seedStart int64
	workers   int
}

func NewEnsemble(build Factory, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{
		build:     build,
		numRuns:   numRuns,
		seedStart: seedStart,
		workers:   runtime.GOMAXPROCS(0),
	}
}

// SetWorkers caps the number of members simulated at once.
func (e *Ensemble) SetWorkers(n int) {
	if n > 0 {
		e.workers = n
	}
}

// Run returns one result per seed in seed order. The first failure cancels
// the remaining members.
func (e *Ensemble) Run(ctx context.Context, x0 State, cfg Config) ([]*Result, error) {
	results := make([]*Result, e.numRuns)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := 0; i < e.numRuns; i++ {
		i := i
		g.Go(func() error {
			member := cfg
			member.Seed = e.seedStart + int64(i)

			s, err := e.build(member.Seed)
			if err != nil {
				return fmt.Errorf("seed %d: %w", member.Seed, err)
			}
			res, err := s.Run(ctx, x0, member)
			if err != nil {
				return fmt.Errorf("seed %d: %w", member.Seed, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
