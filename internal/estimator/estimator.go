// Package estimator provides a synthetic stand-in for the upstream MAP
// predictor so the controller can be exercised in closed loop.
package estimator

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/vasoloop/internal/dosing"
)

// Config describes the error characteristics of the synthetic predictor.
type Config struct {
	NoiseMMHg     float64 `yaml:"noise_mmhg"`
	BiasMMHg      float64 `yaml:"bias_mmhg"`
	Confidence    float64 `yaml:"confidence"`
	ConfSpread    float64 `yaml:"confidence_spread"`
	DropoutProb   float64 `yaml:"dropout_prob"`
	GarbageProb   float64 `yaml:"garbage_prob"`
	LowConfProb   float64 `yaml:"low_confidence_prob"`
	RiskThreshold float64 `yaml:"risk_threshold_mmhg"`
}

func DefaultConfig() Config {
	return Config{
		NoiseMMHg:     1.5,
		Confidence:    0.85,
		ConfSpread:    0.05,
		DropoutProb:   0.01,
		GarbageProb:   0.002,
		LowConfProb:   0.02,
		RiskThreshold: 65,
	}
}

func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		p    float64
	}{
		{"dropout_prob", c.DropoutProb},
		{"garbage_prob", c.GarbageProb},
		{"low_confidence_prob", c.LowConfProb},
	} {
		if !(f.p >= 0 && f.p <= 1) {
			return fmt.Errorf("estimator: %s must be in [0,1], got %v", f.name, f.p)
		}
	}
	if !(c.NoiseMMHg >= 0) {
		return fmt.Errorf("estimator: noise must not be negative, got %v", c.NoiseMMHg)
	}
	return nil
}

// Synthetic perturbs the true MAP into a prediction with a confidence score.
type Synthetic struct {
	cfg Config
	rng *rand.Rand
}

func NewSynthetic(cfg Config, seed int64) *Synthetic {
	return &Synthetic{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

func (s *Synthetic) Sample(trueMAP, target float64, t float64) *dosing.ControlInputs {
	// Every call consumes the same five draws.
	uDrop := s.rng.Float64()
	uGarbage := s.rng.Float64()
	uLow := s.rng.Float64()
	noise := s.rng.NormFloat64()
	confNoise := s.rng.NormFloat64()

	if uDrop < s.cfg.DropoutProb {
		return nil
	}

	predicted := trueMAP + s.cfg.BiasMMHg + noise*s.cfg.NoiseMMHg
	if uGarbage < s.cfg.GarbageProb {
		predicted = math.NaN()
	}

	conf := s.cfg.Confidence + confNoise*s.cfg.ConfSpread
	conf = math.Max(math.Min(conf, dosing.MaxConfidence), dosing.MinConfidence)
	if uLow < s.cfg.LowConfProb {
		conf = dosing.MinConfidence * 0.5
	}

	return &dosing.ControlInputs{
		PredictedMAP:    predicted,
		HypotensionRisk: Risk(predicted, s.cfg.RiskThreshold),
		Confidence:      conf,
		TargetMAP:       target,
	}
}

// Risk maps a predicted MAP to a hypotension probability with a logistic
// curve centred on threshold.
func Risk(predicted, threshold float64) float64 {
	if math.IsNaN(predicted) {
		return math.NaN()
	}
	return 1 / (1 + math.Exp((predicted-threshold)/2.5))
}

// Perfect reports the true MAP with full confidence.
type Perfect struct{}

func (Perfect) Sample(trueMAP, target float64, t float64) *dosing.ControlInputs {
	return &dosing.ControlInputs{
		PredictedMAP:    trueMAP,
		HypotensionRisk: Risk(trueMAP, 65),
		Confidence:      1,
		TargetMAP:       target,
	}
}
