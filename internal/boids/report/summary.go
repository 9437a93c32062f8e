package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/boids.report/internal/boids/l2experiment"
	"github.com/banshee-data/boids.report/internal/boids/l3grid"
)

// Summary describes one conversion: the input experiment, the projection
// settings and what the projection produced.
type Summary struct {
	Source string `json:"source"`
	Output string `json:"output"`

	Experiment l2experiment.Summary `json:"experiment"`

	GridSize           int        `json:"grid_size"`
	Mapping            string     `json:"mapping"`
	PartitionOfUnity   bool       `json:"partition_of_unity"`
	TimeNormalizedFlow bool       `json:"time_normalized_flow"`
	MaxTime            *float64   `json:"max_time,omitempty"`
	CellSize           [2]float64 `json:"cell_size"`

	Projection   l3grid.Stats `json:"projection"`
	TotalTraffic float64      `json:"total_traffic"`
	MaxTraffic   float64      `json:"max_traffic"`
}

// NewSummary collects a Summary after exp has been projected into g with cfg.
func NewSummary(source, output string, exp *l2experiment.Experiment, g *l3grid.Grid, cfg l3grid.Config) Summary {
	mapping := cfg.Mapping
	if mapping == nil {
		mapping = l3grid.InverseDistance{}
	}
	s := Summary{
		Source:             source,
		Output:             output,
		GridSize:           cfg.Size,
		Mapping:            mapping.Name(),
		PartitionOfUnity:   cfg.PartitionOfUnity,
		TimeNormalizedFlow: cfg.TimeNormalizedFlow,
		MaxTime:            cfg.MaxTime,
	}
	if exp != nil {
		s.Experiment = exp.Summary()
	}
	if g != nil {
		s.GridSize = g.Size
		s.CellSize = [2]float64{g.CellSize.X, g.CellSize.Y}
		s.Projection = g.Stats
		s.TotalTraffic = g.TotalTraffic()
		s.MaxTraffic = g.MaxTraffic()
	}
	return s
}

// WriteSummaryJSON writes s as indented JSON.
func WriteSummaryJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
