package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/vasoloop/internal/dosing"
)

type Simulator struct {
	sys        System
	integrator Integrator
	controller Controller
	estimator  Estimator
	actuator   Actuator
	metrics    []Metric
	observers  []Observer
}

func New(sys System, integrator Integrator, controller Controller, estimator Estimator) *Simulator {
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		controller: controller,
		estimator:  estimator,
		metrics:    make([]Metric, 0),
		observers:  make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

// SetActuator routes every command to a, e.g. a pump.
func (s *Simulator) SetActuator(a Actuator) {
	s.actuator = a
}

func (s *Simulator) Controller() Controller {
	return s.controller
}

// Run drives a session to completion. A run cut short by a SimError still
// returns its partial result, with an error wrapping ErrAborted.
func (s *Simulator) Run(ctx context.Context, x0 State, cfg Config) (*Result, error) {
	sess, err := s.Start(x0, cfg)
	if err != nil {
		return nil, err
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	for !sess.Done() {
		select {
		case <-ctx.Done():
			return sess.result, ctx.Err()
		default:
		}

		tick, err := sess.Next()
		if err != nil {
			sess.result.Errors = append(sess.result.Errors, err)
			break
		}
		for _, m := range s.metrics {
			m.Observe(tick)
		}
	}

	for _, m := range s.metrics {
		sess.result.Metrics[m.Name()] = m.Value()
	}

	if len(sess.result.Errors) > 0 {
		return sess.result, fmt.Errorf("%w after %d ticks: %w", ErrAborted, len(sess.result.Ticks), errors.Join(sess.result.Errors...))
	}
	return sess.result, nil
}

// Start prepares a step-by-step run; Run drives one to completion.
func (s *Simulator) Start(x0 State, cfg Config) (*Session, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	ticks := int(cfg.Duration / cfg.ControlPeriod)
	return &Session{
		sim:    s,
		cfg:    cfg,
		x:      x0.Clone(),
		target: cfg.TargetMAP,
		result: &Result{
			Ticks:   make([]Tick, 0, ticks),
			States:  make([]State, 0, ticks),
			Times:   make([]float64, 0, ticks),
			Metrics: make(map[string]float64),
			Errors:  make([]error, 0),
		},
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.ControlPeriod < cfg.Dt {
		return fmt.Errorf("control period %f must not be shorter than dt %f", cfg.ControlPeriod, cfg.Dt)
	}
	if math.IsNaN(cfg.TargetMAP) || math.IsInf(cfg.TargetMAP, 0) {
		return fmt.Errorf("target MAP must be finite, got %f", cfg.TargetMAP)
	}
	return nil
}

// Session is an in-progress run advanced one control period at a time.
type Session struct {
	sim    *Simulator
	cfg    Config
	x      State
	t      float64
	step   int
	target float64
	result *Result
	drop   bool
}

func (ss *Session) Done() bool {
	return ss.t >= ss.cfg.Duration
}

func (ss *Session) Time() float64 {
	return ss.t
}

func (ss *Session) State() State {
	return ss.x.Clone()
}

func (ss *Session) Result() *Result {
	return ss.result
}

// Controller returns the controller driving this session.
func (ss *Session) Controller() Controller {
	return ss.sim.controller
}

func (ss *Session) Target() float64 {
	return ss.target
}

// SetTarget changes the clinician target for subsequent ticks.
func (ss *Session) SetTarget(v float64) {
	ss.target = v
}

// ForceDropout discards the next estimator sample.
func (ss *Session) ForceDropout() { ss.drop = true }

// Next samples, commands and integrates one control period.
func (ss *Session) Next() (Tick, error) {
	s := ss.sim

	in := s.estimator.Sample(ss.x.MAP(), ss.target, ss.t)
	if ss.drop {
		in = nil
		ss.drop = false
	}
	out := s.controller.Compute(in, ss.t)

	tick := Tick{
		Time:    ss.t,
		TrueMAP: ss.x.MAP(),
		Target:  ss.target,
		Inputs:  in,
		Output:  out,
	}
	tick.Reason = dosing.InputReason(in)

	if s.actuator != nil {
		if err := s.actuator.Apply(tick); err != nil {
			return tick, SimError{Time: ss.t, Step: ss.step, Message: err.Error()}
		}
	}

	for _, obs := range s.observers {
		obs.OnTick(tick)
	}

	ss.result.Ticks = append(ss.result.Ticks, tick)
	ss.result.States = append(ss.result.States, ss.x.Clone())
	ss.result.Times = append(ss.result.Times, ss.t)

	end := math.Min(ss.t+ss.cfg.ControlPeriod, ss.cfg.Duration)
	for ss.t < end {
		dt := math.Min(ss.cfg.Dt, end-ss.t)
		next := s.integrator.Step(s.sys, ss.x, out.CommandedRate, ss.t, dt)
		if ss.cfg.ValidateState && !next.IsValid() {
			return tick, SimError{Time: ss.t, Step: ss.step, Message: "invalid state (NaN/Inf)"}
		}
		ss.x = next
		ss.t += dt
		ss.step++
		ss.result.StepsTaken++
	}

	return tick, nil
}
