// Package replay reads and writes JSONL estimator fixtures and feeds them
// to the control loop.
//
// One object per line:
//
//	{"t": 0, "predicted_map_mmhg": 61.2, "clinician_target_map_mmhg": 65, "hypotension_risk": 0.4, "confidence": 0.9}
//	{"t": 5, "missing": true}
//
// Non-finite values are written as the strings "NaN", "Inf" and "-Inf".
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/sim"
)

// ErrInvalidJSON indicates a fixture line that does not decode.
var ErrInvalidJSON = errors.New("replay: invalid JSON")

// Float is a float64 whose JSON form may be a number or one of "NaN",
// "Inf", "+Inf", "-Inf".
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*f = Float(math.NaN())
		case "Inf", "+Inf":
			*f = Float(math.Inf(1))
		case "-Inf":
			*f = Float(math.Inf(-1))
		default:
			return fmt.Errorf("unsupported float string %q", s)
		}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Record is one fixture line.
type Record struct {
	T          float64 `json:"t"`
	Predicted  Float   `json:"predicted_map_mmhg"`
	Target     Float   `json:"clinician_target_map_mmhg"`
	Risk       Float   `json:"hypotension_risk"`
	Confidence Float   `json:"confidence"`
	Missing    bool    `json:"missing,omitempty"`
}

// Inputs converts the record to controller inputs; missing records yield nil.
func (r Record) Inputs() *dosing.ControlInputs {
	if r.Missing {
		return nil
	}
	return &dosing.ControlInputs{
		PredictedMAP:    float64(r.Predicted),
		HypotensionRisk: float64(r.Risk),
		Confidence:      float64(r.Confidence),
		TargetMAP:       float64(r.Target),
	}
}

// FromInputs builds a record; nil inputs become a missing record.
func FromInputs(t float64, in *dosing.ControlInputs) Record {
	if in == nil {
		return Record{T: t, Missing: true}
	}
	return Record{
		T:          t,
		Predicted:  Float(in.PredictedMAP),
		Target:     Float(in.TargetMAP),
		Risk:       Float(in.HypotensionRisk),
		Confidence: Float(in.Confidence),
	}
}

// Read parses a whole fixture. Blank lines are skipped; the first bad line
// aborts with its 1-based line number.
func Read(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var records []Record
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w on line %d: %v", ErrInvalidJSON, line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return records, nil
}

func Open(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write emits records as JSONL.
func Write(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

func Create(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fixture: %w", err)
	}
	if err := Write(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Source replays records in order and returns io.EOF when exhausted.
type Source struct {
	records []Record
	pos     int
}

func NewSource(records []Record) *Source {
	return &Source{records: records}
}

func (s *Source) Next(ctx context.Context) (*dosing.ControlInputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec.Inputs(), nil
}

// Remaining reports how many records have not been replayed.
func (s *Source) Remaining() int {
	return len(s.records) - s.pos
}

// FromResult records the estimator samples of a simulated run so the same
// stream can be replayed against the loop.
func FromResult(res *sim.Result) []Record {
	records := make([]Record, len(res.Ticks))
	for i, tk := range res.Ticks {
		records[i] = FromInputs(tk.Time, tk.Inputs)
	}
	return records
}
