package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/vasoloop/internal/dosing"
	"github.com/san-kum/vasoloop/internal/replay"
	"github.com/san-kum/vasoloop/internal/sim"
)

type ExportTick struct {
	Time    float64              `json:"t"`
	TrueMAP replay.Float         `json:"true_map_mmhg"`
	Target  float64              `json:"target_map_mmhg"`
	Sample  replay.Record        `json:"sample"`
	Output  dosing.ControlOutput `json:"output"`
	Reason  string               `json:"reason"`
}

type ExportData struct {
	Run   RunMetadata  `json:"run"`
	Ticks []ExportTick `json:"ticks"`
}

func NewExport(meta RunMetadata, ticks []sim.Tick) ExportData {
	data := ExportData{
		Run:   meta,
		Ticks: make([]ExportTick, len(ticks)),
	}
	data.Run.Metrics = finiteMetrics(meta.Metrics)
	for i, tk := range ticks {
		data.Ticks[i] = ExportTick{
			Time:    tk.Time,
			TrueMAP: replay.Float(tk.TrueMAP),
			Target:  tk.Target,
			Sample:  replay.FromInputs(tk.Time, tk.Inputs),
			Output:  tk.Output,
			Reason:  tk.Reason.String(),
		}
	}
	return data
}

func ExportJSON(w io.Writer, data ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func ExportJSONFile(path string, data ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ExportJSON(file, data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
