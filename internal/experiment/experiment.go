package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/vasoloop/internal/config"
	"github.com/san-kum/vasoloop/internal/estimator"
	"github.com/san-kum/vasoloop/internal/patient"
	"github.com/san-kum/vasoloop/internal/pump"
	"github.com/san-kum/vasoloop/internal/sim"
	"github.com/san-kum/vasoloop/internal/storage"
)

// Experiment is one fully wired closed-loop simulation.
type Experiment struct {
	cfg       config.Config
	patient   *patient.Patient
	simulator *sim.Simulator
}

// New validates cfg and wires patient, integrator, controller, estimator
// and the default metrics.
func New(cfg *config.Config, reg *Registry) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := reg.GetProfile(cfg.Profile)
	if err != nil {
		return nil, err
	}
	p.Sensitivity *= cfg.Sensitivity

	integ, err := reg.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	ctrl, err := reg.GetController(cfg.Controller, cfg.Limits)
	if err != nil {
		return nil, fmt.Errorf("controller %s: %w", cfg.Controller, err)
	}

	s := sim.New(p, integ, ctrl, estimator.NewSynthetic(cfg.Estimator, cfg.Seed))
	for _, m := range reg.DefaultMetrics() {
		s.AddMetric(m)
	}

	return &Experiment{
		cfg:       *cfg,
		patient:   p,
		simulator: s,
	}, nil
}

// AttachPump routes every simulated command and alarm to p.
func (e *Experiment) AttachPump(ctx context.Context, p pump.Pump) {
	e.simulator.SetActuator(pump.NewActuator(ctx, p))
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.simulator.Run(ctx, e.patient.InitialState(), e.cfg.SimConfig())
}

// Start opens a session for interactive stepping.
func (e *Experiment) Start() (*sim.Session, error) {
	return e.simulator.Start(e.patient.InitialState(), e.cfg.SimConfig())
}

func (e *Experiment) Simulator() *sim.Simulator {
	return e.simulator
}

func (e *Experiment) Patient() *patient.Patient {
	return e.patient
}

func (e *Experiment) Config() config.Config {
	return e.cfg
}

// Metadata describes the run for storage; ID and timestamp are filled on save.
func (e *Experiment) Metadata(res *sim.Result) storage.RunMetadata {
	meta := storage.RunMetadata{
		Profile:       e.cfg.Profile,
		Drug:          e.cfg.Drug,
		Seed:          e.cfg.Seed,
		Dt:            e.cfg.Dt,
		Duration:      e.cfg.Duration,
		ControlPeriod: e.cfg.ControlPeriod,
		TargetMAP:     e.cfg.TargetMAP,
		Integrator:    e.cfg.Integrator,
		Controller:    e.cfg.Controller,
		Limits:        e.cfg.Limits,
	}
	if res != nil {
		meta.Metrics = res.Metrics
	}
	return meta
}

// RunEnsemble runs the same configuration over runs consecutive seeds
// starting at cfg.Seed, in parallel.
func RunEnsemble(ctx context.Context, cfg *config.Config, reg *Registry, runs int) ([]*sim.Result, error) {
	first, err := New(cfg, reg)
	if err != nil {
		return nil, err
	}

	base := *cfg
	build := func(seed int64) (*sim.Simulator, error) {
		c := base
		c.Seed = seed
		exp, err := New(&c, reg)
		if err != nil {
			return nil, err
		}
		return exp.Simulator(), nil
	}

	ens := sim.NewEnsemble(build, runs, base.Seed)
	return ens.Run(ctx, first.patient.InitialState(), base.SimConfig())
}
