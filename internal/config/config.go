package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/estimator"
	"github.com/san-kum/vasoloop/internal/sim"
)

const (
	DefaultDt            = 0.5
	DefaultDuration      = 1800.0
	DefaultControlPeriod = 5.0
	DefaultTargetMAP     = 65.0
	DefaultSeed          = 1
)

var (
	ErrInvalidTiming      = errors.New("config: invalid timing")
	ErrInvalidTarget      = errors.New("config: invalid target MAP")
	ErrInvalidSensitivity = errors.New("config: sensitivity must be positive")
)

type Config struct {
	Profile       string              `yaml:"profile"`
	Integrator    string              `yaml:"integrator"`
	Controller    string              `yaml:"controller"`
	Drug          string              `yaml:"drug,omitempty"`
	Dt            float64             `yaml:"dt"`
	Duration      float64             `yaml:"duration"`
	ControlPeriod float64             `yaml:"control_period"`
	TargetMAP     float64             `yaml:"target_map_mmhg"`
	Sensitivity   float64             `yaml:"sensitivity"`
	Seed          int64               `yaml:"seed"`
	Limits        dosing.DosingLimits `yaml:"limits"`
	Estimator     estimator.Config    `yaml:"estimator"`
}

func DefaultConfig() *Config {
	return &Config{
		Profile:       "septic",
		Integrator:    "rk4",
		Controller:    "safety",
		Drug:          "norepinephrine",
		Dt:            DefaultDt,
		Duration:      DefaultDuration,
		ControlPeriod: DefaultControlPeriod,
		TargetMAP:     DefaultTargetMAP,
		Sensitivity:   1,
		Seed:          DefaultSeed,
		Limits:        Drugs["norepinephrine"].Limits,
		Estimator:     estimator.DefaultConfig(),
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Limits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("limits: %w", err))
	}
	if err := c.Estimator.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !(c.Dt > 0) || !(c.Duration > 0) {
		errs = append(errs, fmt.Errorf("%w: dt=%v duration=%v", ErrInvalidTiming, c.Dt, c.Duration))
	} else if !(c.ControlPeriod >= c.Dt) {
		errs = append(errs, fmt.Errorf("%w: control_period %v shorter than dt %v", ErrInvalidTiming, c.ControlPeriod, c.Dt))
	}
	if math.IsNaN(c.TargetMAP) || math.IsInf(c.TargetMAP, 0) || c.TargetMAP <= 0 {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidTarget, c.TargetMAP))
	}
	if !(c.Sensitivity > 0) {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidSensitivity, c.Sensitivity))
	}
	return errors.Join(errs...)
}

func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		Dt:            c.Dt,
		Duration:      c.Duration,
		ControlPeriod: c.ControlPeriod,
		TargetMAP:     c.TargetMAP,
		Seed:          c.Seed,
		ValidateState: true,
	}
}
