package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/sim"
)

const (
	metadataFile = "metadata.json"
	ticksFile    = "ticks.csv"
)

var ErrRunNotFound = errors.New("storage: run not found")

var tickHeader = []string{
	"time", "true_map", "target",
	"missing", "predicted_map", "confidence", "hypotension_risk", "clinician_target",
	"commanded_rate", "use_fallback", "trigger_alarm", "reason",
}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID            string              `json:"id"`
	Profile       string              `json:"profile"`
	Drug          string              `json:"drug,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
	Seed          int64               `json:"seed"`
	Dt            float64             `json:"dt"`
	Duration      float64             `json:"duration"`
	ControlPeriod float64             `json:"control_period"`
	TargetMAP     float64             `json:"target_map_mmhg"`
	Integrator    string              `json:"integrator"`
	Controller    string              `json:"controller"`
	Limits        dosing.DosingLimits `json:"limits"`
	Ticks         int                 `json:"ticks"`
	Metrics       map[string]float64  `json:"metrics"`
}

// Save writes a run directory and returns its ID. ID and Timestamp are
// assigned here.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	now := time.Now()
	meta.ID = fmt.Sprintf("%s_%d", meta.Profile, now.UnixMilli())
	meta.Timestamp = now
	meta.Ticks = len(result.Ticks)
	meta.Metrics = finiteMetrics(result.Metrics)

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, ticksFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(tickHeader); err != nil {
		return "", err
	}
	for _, tk := range result.Ticks {
		if err := w.Write(tickRow(tk)); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	return meta.ID, nil
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

// LoadTicks reads ticks.csv back. Reasons are recomputed from the inputs.
func (s *Store) LoadTicks(runID string) ([]sim.Tick, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, ticksFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(tickHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	if len(records) < 2 {
		return []sim.Tick{}, nil
	}

	ticks := make([]sim.Tick, 0, len(records)-1)
	for i, rec := range records[1:] {
		tk, err := parseTick(rec)
		if err != nil {
			return nil, fmt.Errorf("run %s row %d: %w", runID, i+1, err)
		}
		ticks = append(ticks, tk)
	}
	return ticks, nil
}

func tickRow(tk sim.Tick) []string {
	row := []string{
		formatFloat(tk.Time),
		formatFloat(tk.TrueMAP),
		formatFloat(tk.Target),
	}
	if tk.Inputs == nil {
		row = append(row, "true", "", "", "", "")
	} else {
		row = append(row,
			"false",
			formatFloat(tk.Inputs.PredictedMAP),
			formatFloat(tk.Inputs.Confidence),
			formatFloat(tk.Inputs.HypotensionRisk),
			formatFloat(tk.Inputs.TargetMAP),
		)
	}
	return append(row,
		formatFloat(tk.Output.CommandedRate),
		strconv.FormatBool(tk.Output.UseFallback),
		strconv.FormatBool(tk.Output.TriggerAlarm),
		tk.Reason.String(),
	)
}

func parseTick(rec []string) (sim.Tick, error) {
	var (
		tk   sim.Tick
		errs []error
	)
	float := func(s string) float64 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	boolean := func(s string) bool {
		v, err := strconv.ParseBool(s)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	tk.Time = float(rec[0])
	tk.TrueMAP = float(rec[1])
	tk.Target = float(rec[2])
	if !boolean(rec[3]) {
		tk.Inputs = &dosing.ControlInputs{
			PredictedMAP:    float(rec[4]),
			Confidence:      float(rec[5]),
			HypotensionRisk: float(rec[6]),
			TargetMAP:       float(rec[7]),
		}
	}
	tk.Output = dosing.ControlOutput{
		CommandedRate: float(rec[8]),
		UseFallback:   boolean(rec[9]),
		TriggerAlarm:  boolean(rec[10]),
	}
	tk.Reason = dosing.InputReason(tk.Inputs)

	return tk, errors.Join(errs...)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// finiteMetrics drops values encoding/json cannot represent.
func finiteMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}
