package config

import (
	"sort"

	"github.com/san-kum/vasoloop/internal/dosing"
)

// Drug is one drug library entry. Sensitivity scales the patient's pressor
// gain relative to norepinephrine.
type Drug struct {
	Name        string
	Limits      dosing.DosingLimits
	Sensitivity float64
	Notes       string
}

var Drugs = map[string]Drug{
	"norepinephrine": {
		Name: "norepinephrine",
		Limits: dosing.DosingLimits{
			CurrentRate: 0.05, MinRate: 0.02, MaxRate: 0.8, MaxDelta: 0.02, FallbackRate: 0.05,
		},
		Sensitivity: 1,
		Notes:       "first-line vasopressor",
	},
	"epinephrine": {
		Name: "epinephrine",
		Limits: dosing.DosingLimits{
			CurrentRate: 0.03, MinRate: 0.01, MaxRate: 0.5, MaxDelta: 0.01, FallbackRate: 0.03,
		},
		Sensitivity: 1.2,
		Notes:       "watch for tachycardia",
	},
	"phenylephrine": {
		Name: "phenylephrine",
		Limits: dosing.DosingLimits{
			CurrentRate: 0.5, MinRate: 0.1, MaxRate: 3.0, MaxDelta: 0.1, FallbackRate: 0.5,
		},
		Sensitivity: 0.12,
		Notes:       "pure alpha agonist; reflex bradycardia",
	},
	"dopamine": {
		Name: "dopamine",
		Limits: dosing.DosingLimits{
			CurrentRate: 5, MinRate: 2, MaxRate: 20, MaxDelta: 0.5, FallbackRate: 5,
		},
		Sensitivity: 0.015,
		Notes:       "arrhythmogenic at high rates",
	},
}

// GetPreset returns the default configuration dosed for a drug, or nil.
func GetPreset(drug string) *Config {
	d, ok := Drugs[drug]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Drug = d.Name
	cfg.Limits = d.Limits
	cfg.Sensitivity = d.Sensitivity
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Drugs))
	for name := range Drugs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
