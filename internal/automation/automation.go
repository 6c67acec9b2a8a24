// Package automation runs batches of closed-loop simulations: scripted
// scenarios, patient parameter sweeps and Monte Carlo safety campaigns.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/vasoloop/internal/config"
	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/experiment"
	"github.com/san-kum/vasoloop/internal/logger"
	"github.com/san-kum/vasoloop/internal/sim"
	"github.com/san-kum/vasoloop/internal/storage"
)

// Scenario defines a scripted sequence of runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep overrides the base configuration for one run. Zero values
// keep the base value.
type ScenarioStep struct {
	Name       string               `yaml:"name"`
	Profile    string               `yaml:"profile"`
	Drug       string               `yaml:"drug"`
	Controller string               `yaml:"controller"`
	Duration   float64              `yaml:"duration"`
	TargetMAP  float64              `yaml:"target_map_mmhg"`
	Seed       int64                `yaml:"seed"`
	Limits     *dosing.DosingLimits `yaml:"limits"`
	Estimator  *EstimatorOverrides  `yaml:"estimator"`
	Params     map[string]float64   `yaml:"patient_params"`
}

// EstimatorOverrides replaces individual estimator settings.
type EstimatorOverrides struct {
	NoiseMMHg   *float64 `yaml:"noise_mmhg"`
	DropoutProb *float64 `yaml:"dropout_prob"`
	GarbageProb *float64 `yaml:"garbage_prob"`
	LowConfProb *float64 `yaml:"low_confidence_prob"`
}

type StepResult struct {
	Name     string
	Config   config.Config
	Result   *sim.Result
	Metadata storage.RunMetadata
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", scenario.Name)
	}
	return &scenario, nil
}

// Apply returns base with the step's overrides applied.
func (s ScenarioStep) Apply(base *config.Config) (*config.Config, error) {
	cfg := *base
	if s.Drug != "" {
		preset := config.GetPreset(s.Drug)
		if preset == nil {
			return nil, fmt.Errorf("unknown drug: %s", s.Drug)
		}
		cfg.Drug = preset.Drug
		cfg.Limits = preset.Limits
		cfg.Sensitivity = preset.Sensitivity
	}
	if s.Profile != "" {
		cfg.Profile = s.Profile
	}
	if s.Controller != "" {
		cfg.Controller = s.Controller
	}
	if s.Duration != 0 {
		cfg.Duration = s.Duration
	}
	if s.TargetMAP != 0 {
		cfg.TargetMAP = s.TargetMAP
	}
	if s.Seed != 0 {
		cfg.Seed = s.Seed
	}
	if s.Limits != nil {
		cfg.Limits = *s.Limits
	}
	if e := s.Estimator; e != nil {
		setIf(&cfg.Estimator.NoiseMMHg, e.NoiseMMHg)
		setIf(&cfg.Estimator.DropoutProb, e.DropoutProb)
		setIf(&cfg.Estimator.GarbageProb, e.GarbageProb)
		setIf(&cfg.Estimator.LowConfProb, e.LowConfProb)
	}
	return &cfg, nil
}

func setIf(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// RunScenario executes all steps in order and stops at the first failure.
func RunScenario(ctx context.Context, scenario *Scenario, base *config.Config, registry *experiment.Registry) ([]StepResult, error) {
	ctx = logger.WithName(ctx, "scenario")
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}
		logger.InfoKV(ctx, "running scenario step", "step", i+1, "of", len(scenario.Steps), "name", name)

		cfg, err := step.Apply(base)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}

		exp, err := experiment.New(cfg, registry)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		for k, v := range step.Params {
			if err := exp.Patient().SetParam(k, v); err != nil {
				return results, fmt.Errorf("step %d: %w", i+1, err)
			}
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}

		results = append(results, StepResult{
			Name:     name,
			Config:   *cfg,
			Result:   result,
			Metadata: exp.Metadata(result),
		})
	}

	return results, nil
}

// ParameterSweep varies one patient parameter across a linear range.
type ParameterSweep struct {
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

type SweepResult struct {
	ParamValue float64
	Metrics    map[string]float64
}

// RunSweep executes a parameter sweep over cfg's patient.
func RunSweep(ctx context.Context, sweep *ParameterSweep, cfg *config.Config, registry *experiment.Registry) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", sweep.NumSteps)
	}

	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	results := make([]SweepResult, 0, sweep.NumSteps)
	for i := 0; i < sweep.NumSteps; i++ {
		paramVal := sweep.ParamMin + float64(i)*paramStep

		exp, err := experiment.New(cfg, registry)
		if err != nil {
			return nil, err
		}
		if err := exp.Patient().SetParam(sweep.ParamName, paramVal); err != nil {
			return nil, err
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s=%.4f: %w", sweep.ParamName, paramVal, err)
		}

		results = append(results, SweepResult{ParamValue: paramVal, Metrics: result.Metrics})
		logger.DebugKV(ctx, "sweep point done", "param", sweep.ParamName, "value", paramVal, "step", i+1)
	}

	return results, nil
}

// MonteCarloConfig perturbs the patient and estimator seed per trial.
type MonteCarloConfig struct {
	NumTrials int
	// Relative half-width of the uniform perturbation on gain and tau.
	Perturbation float64
	// Absolute half-width on baseline MAP, mmHg.
	BaselineSpread float64
	Seed           int64
}

type MonteCarloResult struct {
	TrialID    int
	Baseline   float64
	Gain       float64
	Tau        float64
	Violations []Violation
	Metrics    map[string]float64
}

// Safe reports whether the trial kept every dosing bound.
func (r MonteCarloResult) Safe() bool {
	return len(r.Violations) == 0
}

// Violation is a tick where a commanded rate broke a dosing bound.
type Violation struct {
	Tick    int
	Time    float64
	Message string
}

// RunMonteCarlo executes trials with randomized patients and checks every
// tick against the configured limits. A trial whose simulation aborts is
// recorded as a violation.
func RunMonteCarlo(ctx context.Context, mc *MonteCarloConfig, cfg *config.Config, registry *experiment.Registry) ([]MonteCarloResult, error) {
	rng := rand.New(rand.NewSource(mc.Seed))
	results := make([]MonteCarloResult, 0, mc.NumTrials)

	for trial := 0; trial < mc.NumTrials; trial++ {
		c := *cfg
		c.Seed = cfg.Seed + int64(trial)

		exp, err := experiment.New(&c, registry)
		if err != nil {
			return nil, err
		}
		p := exp.Patient()
		p.Baseline += (rng.Float64()*2 - 1) * mc.BaselineSpread
		p.Gain *= 1 + (rng.Float64()*2-1)*mc.Perturbation
		p.Tau *= 1 + (rng.Float64()*2-1)*mc.Perturbation
		if p.Tau <= 0 {
			p.Tau = 1
		}

		result, err := exp.Run(ctx)
		if err != nil && !errors.Is(err, sim.ErrAborted) {
			return nil, fmt.Errorf("trial %d: %w", trial, err)
		}

		violations := CheckBounds(result.Ticks, c.Limits)
		if err != nil {
			violations = append(violations, Violation{
				Tick:    len(result.Ticks),
				Time:    lastTime(result.Ticks),
				Message: err.Error(),
			})
			logger.WarnKV(ctx, "trial aborted", "trial", trial, "ticks", len(result.Ticks), "error", err)
		}

		results = append(results, MonteCarloResult{
			TrialID:    trial,
			Baseline:   p.Baseline,
			Gain:       p.Gain,
			Tau:        p.Tau,
			Violations: violations,
			Metrics:    result.Metrics,
		})

		if (trial+1)%10 == 0 {
			logger.InfoKV(ctx, "monte carlo progress", "done", trial+1, "total", mc.NumTrials)
		}
	}

	return results, nil
}

// CheckBounds verifies commanded rates against limits. Tracking rates must
// lie in [MinRate, MaxRate] (exactly MinRate when the bounds are inverted)
// and differ from the previous tracking rate by at most MaxDelta. Fallback
// ticks must command FallbackRate.
func CheckBounds(ticks []sim.Tick, limits dosing.DosingLimits) []Violation {
	const eps = 1e-9

	var out []Violation
	prev, havePrev := 0.0, false
	for i, tk := range ticks {
		rate := tk.Output.CommandedRate
		if tk.Output.UseFallback {
			if rate != limits.FallbackRate {
				out = append(out, Violation{i, tk.Time, fmt.Sprintf("fallback rate %.4f, want %.4f", rate, limits.FallbackRate)})
			}
			continue
		}

		lo, hi := limits.MinRate, math.Max(limits.MinRate, limits.MaxRate)
		if rate < lo-eps || rate > hi+eps {
			out = append(out, Violation{i, tk.Time, fmt.Sprintf("rate %.4f outside [%.4f, %.4f]", rate, limits.MinRate, limits.MaxRate)})
		}
		if havePrev && math.Abs(rate-prev) > limits.MaxDelta+eps {
			out = append(out, Violation{i, tk.Time, fmt.Sprintf("step %.4f exceeds max delta %.4f", rate-prev, limits.MaxDelta)})
		}
		prev, havePrev = rate, true
	}
	return out
}

func lastTime(ticks []sim.Tick) float64 {
	if len(ticks) == 0 {
		return 0
	}
	return ticks[len(ticks)-1].Time
}

// MonteCarloStats counts safe and unsafe trials.
func MonteCarloStats(results []MonteCarloResult) (safeCount int, unsafeCount int) {
	for _, r := range results {
		if r.Safe() {
			safeCount++
		} else {
			unsafeCount++
		}
	}
	return
}
